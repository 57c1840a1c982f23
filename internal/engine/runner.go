package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/engine/metrics"
	"github.com/anemtools/rdvwatcher/internal/infra/anem"
	"github.com/anemtools/rdvwatcher/internal/notify"
)

// Runner executes the workflow stages for one member at a time. It is
// stateless per call and shared by the monitor and the ad-hoc runners;
// callers must hold the member's processing claim.
type Runner struct {
	api      anem.API
	notifier notify.Notifier
	docs     *DocumentStore
	log      *slog.Logger
}

// NewRunner creates a stage runner over the given gateway.
func NewRunner(api anem.API, notifier notify.Notifier, docs *DocumentStore) *Runner {
	return &Runner{
		api:      api,
		notifier: notifier,
		docs:     docs,
		log:      slog.With("component", "engine"),
	}
}

// API exposes the underlying gateway, for site-availability probes.
func (r *Runner) API() anem.API { return r.api }

// setStatus records a transition and publishes it.
func (r *Runner) setStatus(m *domain.Member, st domain.Status, detail string) {
	r.publish(m, st, m.SetStatus(st, detail, st.IsFailure()))
}

// keepStatus refreshes the detail without changing the status.
func (r *Runner) keepStatus(m *domain.Member, detail string, isError bool) {
	st, short := m.RefreshDetail(detail, isError)
	r.publish(m, st, short)
}

func (r *Runner) publish(m *domain.Member, st domain.Status, short string) {
	r.notifier.MemberUpdated(notify.Event{
		MemberID: m.WassitNumber,
		Status:   st,
		Detail:   short,
		Icon:     notify.IconForStatus(st),
	})
}

// Validate runs the eligibility check and fans the member out into the
// post-validation states. It returns whether the pipeline may progress
// to the remaining stages; a non-nil error is the classified gateway
// failure.
func (r *Runner) Validate(ctx context.Context, m *domain.Member) (canProgress bool, err error) {
	r.setStatus(m, domain.StatusValidating, "re-checking eligibility for "+m.WassitNumber)

	res, err := r.api.ValidateCandidate(ctx, m.WassitNumber, m.IdentityDoc)
	if err != nil {
		r.setStatus(m, domain.StatusValidationFailed, "validation failed: "+err.Error())
		return false, err
	}

	m.HaveAllocation = res.HaveAllocation
	if res.HaveAllocation && res.DetailsAllocation != nil {
		alloc := res.DetailsAllocation
		startDate := alloc.DateDebut
		if i := strings.Index(startDate, "T"); i != -1 {
			startDate = startDate[:i]
		}
		m.AllocationDetails = map[string]string{
			"nomAr":     alloc.NomAr,
			"prenomAr":  alloc.PrenomAr,
			"nomFr":     alloc.NomFr,
			"prenomFr":  alloc.PrenomFr,
			"dateDebut": startDate,
		}
		if alloc.NomAr != m.NomAr || alloc.PrenomAr != m.PrenomAr {
			m.NomAr, m.PrenomAr = alloc.NomAr, alloc.PrenomAr
			m.NomFr, m.PrenomFr = alloc.NomFr, alloc.PrenomFr
			r.notifier.NameFetched(notify.NameEvent{MemberID: m.WassitNumber, NomAr: m.NomAr, PrenomAr: m.PrenomAr})
		}
		r.setStatus(m, domain.StatusAlreadyBenefits,
			fmt.Sprintf("currently receiving the allocation, start date %s.", startDate))
		return false, nil
	}

	m.HasPreInscription = res.HavePreInscription
	m.HasAppointment = res.HaveRendezVous
	m.PreInscriptionID = res.PreInscriptionID.String()
	m.DemandeurID = res.DemandeurID.String()
	m.StructureID = res.StructureID.String()
	m.RendezVousID = res.RendezVousID.String()

	switch {
	case !res.InputValid():
		msg := "submitted identifiers do not match or are invalid."
		for _, ctl := range res.Controls {
			if !ctl.Result && ctl.Name == "matchIdentity" && ctl.Message != "" {
				msg = ctl.Message
				break
			}
		}
		r.setStatus(m, domain.StatusInvalidInput, msg)
		return false, nil

	case m.HasAppointment:
		id := m.RendezVousID
		if id == "" {
			id = "n/a"
		}
		r.setStatus(m, domain.StatusHasAppointment,
			fmt.Sprintf("appointment already booked (id %s).", id))
		// A name fetch is still worth attempting when identity is unknown.
		return m.PreInscriptionID != "" && !m.HasName(), nil

	case res.Eligible && m.HasPreInscription:
		r.setStatus(m, domain.StatusValidated, "validated, pre-registration confirmed.")
		return true, nil

	case res.Eligible:
		r.setStatus(m, domain.StatusRequiresPrereg, "eligible but not yet pre-registered.")
		return true, nil

	default:
		msg := res.Message
		if msg == "" {
			msg = "applicant is not eligible."
		}
		r.setStatus(m, domain.StatusIneligible, msg)
		return false, nil
	}
}

// FetchInfo retrieves the member's identity name from the
// pre-registration record. A missing pre-registration id is a no-op,
// not a failure.
func (r *Runner) FetchInfo(ctx context.Context, m *domain.Member) (fetched bool, err error) {
	if m.PreInscriptionID == "" {
		r.keepStatus(m, "pre-registration id unavailable, name not fetched.", false)
		return false, nil
	}

	prev := m.CurrentStatus()
	r.setStatus(m, domain.StatusFetchingName, "fetching name for "+m.WassitNumber)

	info, err := r.api.GetPreInscription(ctx, m.PreInscriptionID)
	if err != nil {
		if prev == domain.StatusRequiresPrereg {
			r.publish(m, prev, m.SetStatus(prev, "failed to fetch name: "+err.Error(), true))
		} else {
			r.setStatus(m, domain.StatusInfoFetchFailed, "failed to fetch name: "+err.Error())
		}
		return false, err
	}

	m.NomAr = info.NomDemandeurAr
	m.PrenomAr = info.PrenomDemandeurAr
	m.NomFr = info.NomDemandeurFr
	m.PrenomFr = info.PrenomDemandeurFr
	r.notifier.NameFetched(notify.NameEvent{MemberID: m.WassitNumber, NomAr: m.NomAr, PrenomAr: m.PrenomAr})

	if m.HasAppointment {
		r.setStatus(m, domain.StatusHasAppointment,
			"appointment already booked. name: "+m.FullNameAr())
	} else {
		r.setStatus(m, domain.StatusInfoFetched, "name fetched: "+m.FullNameAr())
	}
	return true, nil
}

// SearchAndBook fetches candidate dates and books the first one.
// Malformed dates and missing booking fields are data errors: terminal
// for this run but not reported as gateway failures.
func (r *Runner) SearchAndBook(ctx context.Context, m *domain.Member) (booked bool, err error) {
	if m.StructureID == "" || m.PreInscriptionID == "" || m.DemandeurID == "" || !m.HasPreInscription {
		r.keepStatus(m, "missing ids or unconfirmed pre-registration, booking not attempted.", false)
		return false, nil
	}

	r.setStatus(m, domain.StatusSearchingDates, "searching for available dates")

	res, err := r.api.GetAvailableDates(ctx, m.StructureID, m.PreInscriptionID)
	if err != nil {
		r.setStatus(m, domain.StatusDatesFetchFailed, "failed to fetch dates: "+err.Error())
		return false, err
	}
	if len(res.Dates) == 0 {
		r.setStatus(m, domain.StatusNoDates, "no appointment dates currently available.")
		return false, nil
	}

	formatted, ferr := ReformatDate(res.Dates[0])
	if ferr != nil {
		r.setStatus(m, domain.StatusDateFormatError,
			fmt.Sprintf("invalid date format from service: %q", res.Dates[0]))
		return false, nil
	}

	r.setStatus(m, domain.StatusBooking, "attempting booking on "+formatted)

	if m.CCP == "" || m.NomFr == "" || m.PrenomFr == "" {
		r.setStatus(m, domain.StatusBookingFailed, "payment account or french name missing, cannot book.")
		return false, nil
	}

	book, err := r.api.CreateRendezVous(ctx, anem.BookingRequest{
		PreInscriptionID: m.PreInscriptionID,
		CCP:              m.CCP,
		NomFr:            m.NomFr,
		PrenomFr:         m.PrenomFr,
		Date:             formatted,
		DemandeurID:      m.DemandeurID,
	})
	if err != nil {
		r.setStatus(m, domain.StatusBookingFailed, "booking failed: "+err.Error())
		return false, err
	}

	switch {
	case book.Ineligible():
		msg := book.Message
		if msg == "" {
			msg = "booking refused: the applicant does not meet the eligibility conditions."
		}
		r.setStatus(m, domain.StatusNotEligibleForBooking, msg)
		return false, nil

	case book.Booked():
		m.RendezVousID = book.RendezVousID.String()
		m.AppointmentDate = formatted
		metrics.BookingsTotal.Inc()
		r.setStatus(m, domain.StatusBooked,
			fmt.Sprintf("appointment booked on %s, id %s", formatted, m.RendezVousID))
		return true, nil

	default:
		msg := book.Message
		if msg == "" {
			msg = "unexpected booking response from service."
		}
		r.setStatus(m, domain.StatusBookingFailed, "booking failed: "+msg)
		return false, &domain.APIError{Kind: domain.ErrKindMalformedResponse, Message: msg}
	}
}

// FetchDocuments downloads the engagement attestation and, when an
// appointment exists, the appointment confirmation. Downloads are
// idempotent: a previously recorded path that still exists on disk is
// never re-fetched. Local decode/save errors surface as a failed status
// but are not gateway failures.
func (r *Runner) FetchDocuments(ctx context.Context, m *domain.Member) (allOK bool, err error) {
	if m.PreInscriptionID == "" {
		r.keepStatus(m, "registration id missing, documents not downloaded.", true)
		return false, nil
	}

	dir, derr := r.docs.MemberDir(m)
	if derr != nil {
		r.setStatus(m, domain.StatusDocumentFetchFailed, "failed to create output directory: "+derr.Error())
		return false, nil
	}

	r.setStatus(m, domain.StatusFetchingDocuments, "downloading confirmation documents")

	allOK = true
	var details []string

	path, ok, apiErr, msg := r.downloadOne(ctx, m, anem.DocumentHonneur, m.HonneurDocPath, dir)
	details = append(details, msg)
	if ok {
		m.HonneurDocPath = path
	} else {
		allOK = false
	}
	if apiErr != nil {
		err = apiErr
	}

	if m.HasAppointment || m.RendezVousID != "" {
		path, ok, apiErr, msg = r.downloadOne(ctx, m, anem.DocumentRdv, m.RdvDocPath, dir)
		details = append(details, msg)
		if ok {
			m.RdvDocPath = path
		} else {
			allOK = false
		}
		if apiErr != nil {
			err = apiErr
		}
	} else {
		details = append(details, "appointment certificate not required.")
	}

	summary := strings.Join(details, "; ")
	if allOK {
		// already_benefits is absorbing and never overwritten.
		if m.CurrentStatus() == domain.StatusAlreadyBenefits {
			r.keepStatus(m, summary, false)
		} else {
			r.setStatus(m, domain.StatusComplete, summary)
		}
	} else {
		r.setStatus(m, domain.StatusDocumentFetchFailed, summary)
	}
	return allOK, err
}

// downloadOne fetches a single document unless its recorded path still
// resolves to an existing file.
func (r *Runner) downloadOne(ctx context.Context, m *domain.Member, kind anem.DocumentKind, existing, dir string) (path string, ok bool, apiErr error, statusMsg string) {
	if existing != "" {
		if _, err := os.Stat(existing); err == nil {
			return existing, true, nil, fmt.Sprintf("%s already on disk.", kind)
		}
	}

	b64, err := r.api.DownloadDocument(ctx, kind, m.PreInscriptionID)
	if err != nil {
		return "", false, err, fmt.Sprintf("failed to download %s: %s", kind, err)
	}

	content, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", false, nil, fmt.Sprintf("failed to decode %s: %s", kind, err)
	}

	target := r.docs.DocumentPath(dir, kind, m)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", false, nil, fmt.Sprintf("failed to save %s: %s", kind, err)
	}
	metrics.DocumentsDownloaded.WithLabelValues(string(kind)).Inc()
	return target, true, nil, fmt.Sprintf("%s downloaded.", kind)
}

// RunPipeline executes the stage sequence appropriate for the member's
// current status: the full pipeline, or a document re-check only for
// members already parked in a stable state. The returned error is the
// last classified gateway failure, or nil if every call answered.
func (r *Runner) RunPipeline(ctx context.Context, m *domain.Member) error {
	runID := uuid.NewString()
	log := r.log.With("run_id", runID, "member", m.WassitNumber, "status", m.CurrentStatus())
	log.Debug("pipeline run starting")

	if m.CurrentStatus().DocumentCheckOnly() {
		if m.PreInscriptionID == "" {
			r.keepStatus(m, "cannot check documents, registration id missing.", true)
			return nil
		}
		_, err := r.FetchDocuments(ctx, m)
		return err
	}

	var lastErr error
	canProgress, err := r.Validate(ctx, m)
	if err != nil {
		lastErr = err
	}
	if ctx.Err() != nil {
		return lastErr
	}

	if canProgress && !m.CurrentStatus().BlocksPipeline() {
		if m.PreInscriptionID != "" && !m.HasName() {
			if _, err := r.FetchInfo(ctx, m); err != nil {
				lastErr = err
			}
			if ctx.Err() != nil {
				return lastErr
			}
		}

		if m.CurrentStatus().AllowsBooking() && m.HasPreInscription &&
			m.PreInscriptionID != "" && m.DemandeurID != "" && m.StructureID != "" &&
			!m.HasAppointment && !m.HaveAllocation {
			if _, err := r.SearchAndBook(ctx, m); err != nil {
				lastErr = err
			}
			if ctx.Err() != nil {
				return lastErr
			}
		}
	}

	if m.CurrentStatus().DocumentWorthy() && m.PreInscriptionID != "" {
		if _, err := r.FetchDocuments(ctx, m); err != nil {
			lastErr = err
		}
	}

	log.Debug("pipeline run finished", "final_status", m.CurrentStatus(), "had_error", lastErr != nil)
	return lastErr
}

// ReformatDate converts the service's DD/MM/YYYY form into YYYY-MM-DD.
func ReformatDate(s string) (string, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("expected DD/MM/YYYY, got %q", s)
	}
	day, month, year := parts[0], parts[1], parts[2]
	if day == "" || month == "" || year == "" {
		return "", fmt.Errorf("expected DD/MM/YYYY, got %q", s)
	}
	if len(day) == 1 {
		day = "0" + day
	}
	if len(month) == 1 {
		month = "0" + month
	}
	return year + "-" + month + "-" + day, nil
}
