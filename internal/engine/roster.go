// Package engine drives the booking workflow: the per-member stage
// functions, the monitoring loop, and the ad-hoc runners.
package engine

import (
	"sync"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
)

// Roster is the shared in-memory member list. Workers iterate over
// snapshots; structural mutation goes through Add/Remove so a concurrent
// pass never observes a half-updated slice.
type Roster struct {
	mu      sync.RWMutex
	members []*domain.Member
}

// NewRoster creates a roster seeded with the given members.
func NewRoster(members []*domain.Member) *Roster {
	return &Roster{members: members}
}

// Snapshot returns a copy of the current member list. The members
// themselves are shared, not copied.
func (r *Roster) Snapshot() []*domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Member, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the current roster size.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add appends a member to the roster.
func (r *Roster) Add(m *domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, m)
}

// Remove deletes the member with the given wassit number, reporting
// whether it was present.
func (r *Roster) Remove(wassitNumber string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m.WassitNumber == wassitNumber {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the member with the given wassit number, nil when absent.
func (r *Roster) Find(wassitNumber string) *domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.WassitNumber == wassitNumber {
			return m
		}
	}
	return nil
}
