// Package memory provides an in-memory roster repository used when no
// database is configured, and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/infra/storage"
)

// MemberRepo implements storage.MemberRepository in memory.
type MemberRepo struct {
	mu      sync.RWMutex
	order   []string
	members map[string]*domain.Member
}

// NewMemberRepo creates an empty in-memory repository.
func NewMemberRepo() *MemberRepo {
	return &MemberRepo{members: make(map[string]*domain.Member)}
}

func (r *MemberRepo) Load(ctx context.Context) ([]*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Member, 0, len(r.order))
	for _, key := range r.order {
		m := r.members[key]
		m.NormalizeLoaded()
		out = append(out, m)
	}
	return out, nil
}

func (r *MemberRepo) Upsert(ctx context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.WassitNumber]; !ok {
		r.order = append(r.order, m.WassitNumber)
	}
	r.members[m.WassitNumber] = m
	return nil
}

func (r *MemberRepo) SaveAll(ctx context.Context, members []*domain.Member) error {
	for _, m := range members {
		if err := r.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemberRepo) ResetFailures(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		m.ClearFailures()
	}
	return nil
}

func (r *MemberRepo) Delete(ctx context.Context, wassitNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[wassitNumber]; !ok {
		return storage.ErrMemberNotFound
	}
	delete(r.members, wassitNumber)
	for i, key := range r.order {
		if key == wassitNumber {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
