package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
)

// ErrMemberBusy is returned when an ad-hoc run races the scheduler for
// the same member.
var ErrMemberBusy = errors.New("member is currently being processed")

// CheckNow runs the full pipeline once for a single member, outside the
// periodic rhythm. It is advisory: it never feeds the global
// network-error streak and never suspends the member, but it does
// persist the resulting state.
func (m *Monitor) CheckNow(ctx context.Context, wassitNumber string) (*domain.Member, error) {
	mem := m.roster.Find(wassitNumber)
	if mem == nil {
		return nil, fmt.Errorf("member %s not in roster", wassitNumber)
	}
	if !mem.TryAcquire() {
		return nil, ErrMemberBusy
	}
	defer mem.Release()

	r := m.runner.Load()
	err := r.RunPipeline(ctx, mem)
	if err == nil {
		mem.ClearFailures()
	}

	// Ad-hoc checks also retrieve documents for members the periodic
	// pass treats as settled.
	if err == nil && mem.PreInscriptionID != "" {
		switch mem.CurrentStatus() {
		case domain.StatusHasAppointment, domain.StatusAlreadyBenefits:
			if _, derr := r.FetchDocuments(ctx, mem); derr != nil {
				err = derr
			}
		}
	}

	m.persist(ctx, mem)
	m.updateStatusGauges()

	if err != nil {
		return mem, fmt.Errorf("check for %s finished with errors: %w", wassitNumber, err)
	}
	return mem, nil
}

// DownloadAllDocuments fetches both confirmation documents for one
// member on demand, outside the periodic rhythm. Per-document progress
// is published through the notifier; the returned member carries the
// recorded paths.
func (m *Monitor) DownloadAllDocuments(ctx context.Context, wassitNumber string) (*domain.Member, error) {
	mem := m.roster.Find(wassitNumber)
	if mem == nil {
		return nil, fmt.Errorf("member %s not in roster", wassitNumber)
	}
	if mem.PreInscriptionID == "" {
		return nil, fmt.Errorf("member %s has no registration id, nothing to download", wassitNumber)
	}
	if !mem.TryAcquire() {
		return nil, ErrMemberBusy
	}
	defer mem.Release()

	allOK, err := m.runner.Load().FetchDocuments(ctx, mem)
	m.persist(ctx, mem)
	m.updateStatusGauges()

	if err != nil {
		return mem, fmt.Errorf("document download for %s finished with errors: %w", wassitNumber, err)
	}
	if !allOK {
		return mem, fmt.Errorf("some documents for %s could not be saved", wassitNumber)
	}
	return mem, nil
}
