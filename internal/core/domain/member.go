package domain

import (
	"strings"
	"sync"
	"sync/atomic"
)

// MaxDetailDisplayLength bounds the short activity detail shown in
// roster tables. The full detail is always retained.
const MaxDetailDisplayLength = 80

// Member is one tracked individual progressing through the booking
// workflow. Identity fields are immutable once the member is created;
// everything else is mutated only by the stage functions and the monitor,
// and only while the member's processing flag is held. Status, the
// activity details, and the failure counter are additionally observed by
// goroutines that never take the claim (the health endpoint, the status
// gauges), so those fields go through mu and the accessor methods.
type Member struct {
	// Externally assigned identity.
	WassitNumber string `db:"wassit_number" json:"wassit_number"`
	IdentityDoc  string `db:"identity_doc"  json:"identity_doc"`
	CCP          string `db:"ccp"           json:"ccp"`
	Phone        string `db:"phone"         json:"phone"`

	// Identity data populated by the validate / fetch-info stages.
	NomAr    string `db:"nom_ar"    json:"nom_ar"`
	PrenomAr string `db:"prenom_ar" json:"prenom_ar"`
	NomFr    string `db:"nom_fr"    json:"nom_fr"`
	PrenomFr string `db:"prenom_fr" json:"prenom_fr"`

	// Workflow correlation ids, set once known.
	PreInscriptionID string `db:"pre_inscription_id" json:"pre_inscription_id"`
	DemandeurID      string `db:"demandeur_id"       json:"demandeur_id"`
	StructureID      string `db:"structure_id"       json:"structure_id"`
	RendezVousID     string `db:"rendez_vous_id"     json:"rendez_vous_id"`

	Status     Status `db:"status"      json:"status"`
	Detail     string `db:"detail"      json:"detail"`
	FullDetail string `db:"full_detail" json:"full_detail"`

	AppointmentDate string `db:"appointment_date" json:"appointment_date"`

	HasPreInscription bool `db:"has_pre_inscription" json:"has_pre_inscription"`
	HasAppointment    bool `db:"has_appointment"     json:"has_appointment"`

	HaveAllocation    bool              `db:"have_allocation" json:"have_allocation"`
	AllocationDetails map[string]string `db:"-"               json:"allocation_details,omitempty"`

	HonneurDocPath string `db:"honneur_doc_path" json:"honneur_doc_path"`
	RdvDocPath     string `db:"rdv_doc_path"     json:"rdv_doc_path"`

	ConsecutiveFailures int `db:"consecutive_failures" json:"consecutive_failures"`

	processing atomic.Bool
	// mu guards Status, Detail, FullDetail, and ConsecutiveFailures.
	// Persistence reads the fields directly, which is safe because the
	// repositories are only handed members whose claim is held.
	mu sync.Mutex
}

// NewMember creates a roster entry in the initial state.
func NewMember(wassitNumber, identityDoc, ccp, phone string) *Member {
	return &Member{
		WassitNumber: wassitNumber,
		IdentityDoc:  identityDoc,
		CCP:          ccp,
		Phone:        phone,
		Status:       StatusNew,
	}
}

// TryAcquire atomically claims the member for processing. At most one
// worker holds the claim at a time; Release must be called on every exit
// path once acquired.
func (m *Member) TryAcquire() bool {
	return m.processing.CompareAndSwap(false, true)
}

// Release clears the processing claim.
func (m *Member) Release() {
	m.processing.Store(false)
}

// IsProcessing reports whether a worker currently holds the member.
func (m *Member) IsProcessing() bool {
	return m.processing.Load()
}

// FullNameAr returns the member's Arabic-script full name, empty when
// the name has not been fetched yet.
func (m *Member) FullNameAr() string {
	return strings.TrimSpace(m.NomAr + " " + m.PrenomAr)
}

// HasName reports whether the Arabic-script identity name is cached.
func (m *Member) HasName() bool {
	return m.NomAr != "" && m.PrenomAr != ""
}

// CurrentStatus returns the workflow status. Safe to call without the
// processing claim.
func (m *Member) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status
}

// SetStatus records a transition together with its activity detail and
// returns the derived short detail.
func (m *Member) SetStatus(st Status, detail string, isError bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = st
	m.setDetailLocked(detail, isError)
	return m.Detail
}

// RefreshDetail replaces the activity detail without changing the status
// and returns the status alongside the derived short detail.
func (m *Member) RefreshDetail(detail string, isError bool) (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDetailLocked(detail, isError)
	return m.Status, m.Detail
}

// FailureCount returns the consecutive failure counter. Safe to call
// without the processing claim.
func (m *Member) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConsecutiveFailures
}

// RecordFailure increments the consecutive failure counter and returns
// the new value.
func (m *Member) RecordFailure() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsecutiveFailures++
	return m.ConsecutiveFailures
}

// ClearFailures zeroes the consecutive failure counter.
func (m *Member) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsecutiveFailures = 0
}

// NormalizeLoaded repairs derived state after a load from storage: the
// processing claim is never persisted, so a loaded member starts
// unclaimed, and a missing short detail is re-derived from the full
// text.
func (m *Member) NormalizeLoaded() {
	m.processing.Store(false)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Detail == "" && m.FullDetail != "" {
		m.Detail = summarizeDetail(m.FullDetail, m.Status.IsFailure())
	}
}

// SetDetail records the last activity outcome. The full text is kept
// verbatim; the short copy is derived with display-bounded truncation.
// Error messages are cut at the first sentence or line boundary when that
// fits the display budget.
func (m *Member) SetDetail(detail string, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDetailLocked(detail, isError)
}

func (m *Member) setDetailLocked(detail string, isError bool) {
	m.FullDetail = detail
	m.Detail = summarizeDetail(detail, isError)
}

func summarizeDetail(full string, isError bool) string {
	runes := []rune(full)
	if !isError && len(runes) <= MaxDetailDisplayLength*3/2 {
		return full
	}

	if isError {
		end := -1
		if i := strings.IndexRune(full, '.'); i != -1 {
			end = i
		}
		if i := strings.IndexRune(full, '\n'); i != -1 && (end == -1 || i < end) {
			end = i
		}
		if end != -1 {
			head := []rune(full[:end+1])
			if len(head) <= MaxDetailDisplayLength {
				return strings.TrimSpace(string(head))
			}
		}
	}

	if len(runes) > MaxDetailDisplayLength {
		return string(runes[:MaxDetailDisplayLength]) + "..."
	}
	return full
}
