// Package storage defines roster persistence contracts.
package storage

import (
	"context"
	"errors"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
)

// ErrMemberNotFound is returned when a member doesn't exist.
var ErrMemberNotFound = errors.New("member not found")

// MemberRepository persists the roster. The engine holds the roster in
// memory and writes through after every pipeline run.
type MemberRepository interface {
	// Load returns the full roster.
	Load(ctx context.Context) ([]*domain.Member, error)

	// Upsert inserts or updates one member keyed by its wassit number.
	Upsert(ctx context.Context, m *domain.Member) error

	// SaveAll writes through the whole roster.
	SaveAll(ctx context.Context, members []*domain.Member) error

	// ResetFailures zeroes every member's consecutive failure counter.
	ResetFailures(ctx context.Context) error

	// Delete removes a member from the roster.
	Delete(ctx context.Context, wassitNumber string) error
}
