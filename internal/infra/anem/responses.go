package anem

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is a correlation identifier as returned by the upstream service.
// The service is inconsistent about encoding ids as JSON strings or
// numbers, so both are accepted.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// ControlCheck is one per-field validation result from the validate
// operation.
type ControlCheck struct {
	Name    string `json:"name"`
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// AllocationDetails describes an already-granted benefit.
type AllocationDetails struct {
	NomAr     string `json:"nomAr"`
	PrenomAr  string `json:"prenomAr"`
	NomFr     string `json:"nomFr"`
	PrenomFr  string `json:"prenomFr"`
	DateDebut string `json:"dateDebut"`
}

// ValidationResult is the payload of the validate operation.
type ValidationResult struct {
	Eligible           bool               `json:"eligible"`
	HaveAllocation     bool               `json:"haveAllocation"`
	DetailsAllocation  *AllocationDetails `json:"detailsAllocation"`
	HavePreInscription bool               `json:"havePreInscription"`
	HaveRendezVous     bool               `json:"haveRendezVous"`
	ValidInput         *bool              `json:"validInput"`
	Controls           []ControlCheck     `json:"controls"`
	PreInscriptionID   ID                 `json:"preInscriptionId"`
	DemandeurID        ID                 `json:"demandeurId"`
	StructureID        ID                 `json:"structureId"`
	RendezVousID       ID                 `json:"rendezVousId"`
	Message            string             `json:"message"`
}

// InputValid reports the validInput flag, defaulting to true when the
// service omits it.
func (v *ValidationResult) InputValid() bool {
	return v.ValidInput == nil || *v.ValidInput
}

// PreInscriptionInfo is the payload of the get-info operation.
type PreInscriptionInfo struct {
	NomDemandeurAr    string `json:"nomDemandeurAr"`
	PrenomDemandeurAr string `json:"prenomDemandeurAr"`
	NomDemandeurFr    string `json:"nomDemandeurFr"`
	PrenomDemandeurFr string `json:"prenomDemandeurFr"`
}

// AvailableDates is the payload of the get-dates operation. Dates come
// back as DD/MM/YYYY strings.
type AvailableDates struct {
	Dates []string `json:"dates"`
}

// BookingRequest carries the fields of the book operation.
type BookingRequest struct {
	PreInscriptionID string
	CCP              string
	NomFr            string
	PrenomFr         string
	Date             string // YYYY-MM-DD
	DemandeurID      string
}

// BookingResult is the interpreted payload of the book operation. An
// explicit Eligible=false is a successful negative answer, not an error;
// the caller must branch on Ineligible before looking at the rest.
type BookingResult struct {
	Eligible     *bool       `json:"Eligible"`
	Message      string      `json:"message"`
	Code         json.Number `json:"code"`
	RendezVousID ID          `json:"rendezVousId"`

	// RawText holds the original body when the result was recovered from
	// a non-JSON response via the ineligibility heuristic.
	RawText string `json:"-"`
}

// Ineligible reports whether the service explicitly refused the booking.
func (b *BookingResult) Ineligible() bool {
	return b.Eligible != nil && !*b.Eligible
}

// Booked reports whether the payload carries a confirmed appointment:
// a non-zero result code together with an appointment id.
func (b *BookingResult) Booked() bool {
	if b.Ineligible() || b.RendezVousID == "" {
		return false
	}
	n, err := strconv.Atoi(b.Code.String())
	return err == nil && n != 0
}

// DocumentKind selects which confirmation document to download.
type DocumentKind string

const (
	DocumentHonneur DocumentKind = "HonneurEngagementReport"
	DocumentRdv     DocumentKind = "RdvReport"
)

// documentPayload is the enveloped variant of a document response; the
// service also returns the base64 string bare.
type documentPayload struct {
	Base64PDF string `json:"base64Pdf"`
}
