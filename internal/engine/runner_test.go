package engine

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/infra/anem"
	"github.com/anemtools/rdvwatcher/internal/notify"
)

// fakeAPI implements anem.API with per-operation hooks and call counts.
type fakeAPI struct {
	validate  func(wassit, doc string) (*anem.ValidationResult, error)
	info      func(id string) (*anem.PreInscriptionInfo, error)
	dates     func(structureID, preID string) (*anem.AvailableDates, error)
	book      func(req anem.BookingRequest) (*anem.BookingResult, error)
	download  func(kind anem.DocumentKind, preID string) (string, error)
	available func() (bool, error)

	validateCalls atomic.Int32
	datesCalls    atomic.Int32
	bookCalls     atomic.Int32
	downloadCalls atomic.Int32

	lastBooking anem.BookingRequest
}

func (f *fakeAPI) ValidateCandidate(ctx context.Context, wassit, doc string) (*anem.ValidationResult, error) {
	f.validateCalls.Add(1)
	if f.validate == nil {
		return &anem.ValidationResult{}, nil
	}
	return f.validate(wassit, doc)
}

func (f *fakeAPI) GetPreInscription(ctx context.Context, id string) (*anem.PreInscriptionInfo, error) {
	if f.info == nil {
		return &anem.PreInscriptionInfo{NomDemandeurAr: "بن", PrenomDemandeurAr: "علي", NomDemandeurFr: "Ben", PrenomDemandeurFr: "Ali"}, nil
	}
	return f.info(id)
}

func (f *fakeAPI) GetAvailableDates(ctx context.Context, structureID, preID string) (*anem.AvailableDates, error) {
	f.datesCalls.Add(1)
	if f.dates == nil {
		return &anem.AvailableDates{}, nil
	}
	return f.dates(structureID, preID)
}

func (f *fakeAPI) CreateRendezVous(ctx context.Context, req anem.BookingRequest) (*anem.BookingResult, error) {
	f.bookCalls.Add(1)
	f.lastBooking = req
	if f.book == nil {
		return &anem.BookingResult{}, nil
	}
	return f.book(req)
}

func (f *fakeAPI) DownloadDocument(ctx context.Context, kind anem.DocumentKind, preID string) (string, error) {
	f.downloadCalls.Add(1)
	if f.download == nil {
		return base64.StdEncoding.EncodeToString([]byte("PDF")), nil
	}
	return f.download(kind, preID)
}

func (f *fakeAPI) CheckSiteAvailability(ctx context.Context) (bool, error) {
	if f.available == nil {
		return true, nil
	}
	return f.available()
}

func newTestRunner(t *testing.T, api *fakeAPI) *Runner {
	t.Helper()
	return NewRunner(api, notify.Nop{}, NewDocumentStore(t.TempDir()))
}

func eligibleWithPrereg() *anem.ValidationResult {
	return &anem.ValidationResult{
		Eligible:           true,
		HavePreInscription: true,
		PreInscriptionID:   "11",
		DemandeurID:        "22",
		StructureID:        "33",
	}
}

func TestValidateAllocationIsAbsorbing(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) {
			return &anem.ValidationResult{
				HaveAllocation: true,
				DetailsAllocation: &anem.AllocationDetails{
					NomAr: "بن", PrenomAr: "علي", NomFr: "Ben", PrenomFr: "Ali",
					DateDebut: "2025-01-15T00:00:00",
				},
			}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "1234", "")

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if m.Status != domain.StatusAlreadyBenefits {
		t.Errorf("status = %s, want already_benefits", m.Status)
	}
	if m.AllocationDetails["dateDebut"] != "2025-01-15" {
		t.Errorf("dateDebut = %q", m.AllocationDetails["dateDebut"])
	}
	if m.NomAr != "بن" || m.NomFr != "Ben" {
		t.Errorf("name not merged from allocation: %q %q", m.NomAr, m.NomFr)
	}
	if got := api.datesCalls.Load() + api.bookCalls.Load(); got != 0 {
		t.Errorf("booking stages ran %d calls for an absorbed member", got)
	}

	// A second pass must stay absorbed without even validating again.
	if !m.Status.IsAbsorbing() {
		t.Error("already_benefits must be absorbing")
	}
}

func TestValidateIneligibleKeepsServiceMessage(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) {
			return &anem.ValidationResult{Eligible: false, Message: "not eligible"}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "", "")

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if m.Status != domain.StatusIneligible {
		t.Errorf("status = %s, want ineligible", m.Status)
	}
	if m.Detail != "not eligible" {
		t.Errorf("detail = %q, want the verbatim service message", m.Detail)
	}
}

func TestValidateInvalidInputUsesControlMessage(t *testing.T) {
	no := false
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) {
			return &anem.ValidationResult{
				ValidInput: &no,
				Controls: []anem.ControlCheck{
					{Name: "matchIdentity", Result: false, Message: "identity mismatch"},
				},
			}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "", "")

	_ = r.RunPipeline(context.Background(), m)
	if m.Status != domain.StatusInvalidInput {
		t.Errorf("status = %s, want invalid_input", m.Status)
	}
	if m.Detail != "identity mismatch" {
		t.Errorf("detail = %q", m.Detail)
	}
}

func TestPipelineBooksFirstDateReformatted(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) { return eligibleWithPrereg(), nil },
		dates: func(string, string) (*anem.AvailableDates, error) {
			return &anem.AvailableDates{Dates: []string{"05/08/2025", "06/08/2025"}}, nil
		},
		book: func(anem.BookingRequest) (*anem.BookingResult, error) {
			return &anem.BookingResult{Code: "1", RendezVousID: "987"}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "12345678", "")

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	if api.lastBooking.Date != "2025-08-05" {
		t.Errorf("booking date = %q, want 2025-08-05 (first date, reformatted)", api.lastBooking.Date)
	}
	if m.RendezVousID != "987" || m.AppointmentDate != "2025-08-05" {
		t.Errorf("member not updated: id=%q date=%q", m.RendezVousID, m.AppointmentDate)
	}
	// Booked members flow straight into document retrieval.
	if m.Status != domain.StatusComplete {
		t.Errorf("status = %s, want complete after documents", m.Status)
	}
	if m.HonneurDocPath == "" || m.RdvDocPath == "" {
		t.Error("document paths not recorded")
	}
	for _, p := range []string{m.HonneurDocPath, m.RdvDocPath} {
		content, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("document not written: %v", err)
		}
		if string(content) != "PDF" {
			t.Errorf("document content = %q", content)
		}
	}
}

func TestPipelineNoDates(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) { return eligibleWithPrereg(), nil },
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "12345678", "")

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if m.Status != domain.StatusNoDates {
		t.Errorf("status = %s, want no_dates", m.Status)
	}
	if api.bookCalls.Load() != 0 {
		t.Error("booking attempted without dates")
	}
}

func TestPipelineMalformedDateIsDataError(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) { return eligibleWithPrereg(), nil },
		dates: func(string, string) (*anem.AvailableDates, error) {
			return &anem.AvailableDates{Dates: []string{"next tuesday"}}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "12345678", "")

	err := r.RunPipeline(context.Background(), m)
	if m.Status != domain.StatusDateFormatError {
		t.Errorf("status = %s, want date_format_error", m.Status)
	}
	if domain.CountsAsFailure(err) {
		t.Error("a malformed date must not count as a gateway failure")
	}
}

func TestPipelineBookingIneligible(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) { return eligibleWithPrereg(), nil },
		dates: func(string, string) (*anem.AvailableDates, error) {
			return &anem.AvailableDates{Dates: []string{"05/08/2025"}}, nil
		},
		book: func(anem.BookingRequest) (*anem.BookingResult, error) {
			no := false
			return &anem.BookingResult{Eligible: &no, Message: "not eligible for booking"}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "12345678", "")

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if m.Status != domain.StatusNotEligibleForBooking {
		t.Errorf("status = %s, want not_eligible_for_booking", m.Status)
	}
	if m.Detail != "not eligible for booking" {
		t.Errorf("detail = %q", m.Detail)
	}
}

func TestPipelineMissingBookingFields(t *testing.T) {
	api := &fakeAPI{
		validate: func(string, string) (*anem.ValidationResult, error) { return eligibleWithPrereg(), nil },
		dates: func(string, string) (*anem.AvailableDates, error) {
			return &anem.AvailableDates{Dates: []string{"05/08/2025"}}, nil
		},
		info: func(string) (*anem.PreInscriptionInfo, error) {
			// Arabic name only, no French transcription, no CCP on file.
			return &anem.PreInscriptionInfo{NomDemandeurAr: "بن", PrenomDemandeurAr: "علي"}, nil
		},
	}
	r := newTestRunner(t, api)
	m := domain.NewMember("0016000000", "109990000", "", "")

	err := r.RunPipeline(context.Background(), m)
	if m.Status != domain.StatusBookingFailed {
		t.Errorf("status = %s, want booking_failed", m.Status)
	}
	if domain.CountsAsFailure(err) {
		t.Error("missing local fields must not count as a gateway failure")
	}
	if api.bookCalls.Load() != 0 {
		t.Error("book must not be called with missing fields")
	}
}

func TestDocumentFetchIdempotent(t *testing.T) {
	api := &fakeAPI{}
	docs := NewDocumentStore(t.TempDir())
	r := NewRunner(api, notify.Nop{}, docs)

	m := domain.NewMember("0016000000", "109990000", "", "")
	m.Status = domain.StatusComplete
	m.PreInscriptionID = "11"
	m.HasAppointment = true

	dir, err := docs.MemberDir(m)
	if err != nil {
		t.Fatal(err)
	}
	m.HonneurDocPath = filepath.Join(dir, "honneur_109990000.pdf")
	m.RdvDocPath = filepath.Join(dir, "rdv_109990000.pdf")
	for _, p := range []string{m.HonneurDocPath, m.RdvDocPath} {
		if err := os.WriteFile(p, []byte("PDF"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.RunPipeline(context.Background(), m); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if got := api.downloadCalls.Load(); got != 0 {
		t.Errorf("download called %d times for documents already on disk", got)
	}
	if got := api.validateCalls.Load(); got != 0 {
		t.Errorf("validate called %d times for a settled member", got)
	}
	if m.Status != domain.StatusComplete {
		t.Errorf("status = %s, want complete", m.Status)
	}
}

func TestReformatDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"05/08/2025", "2025-08-05", false},
		{"5/8/2025", "2025-08-05", false},
		{"31/12/2026", "2026-12-31", false},
		{"2025-08-05", "", true},
		{"05/08", "", true},
		{"//", "", true},
	}

	for _, tt := range tests {
		got, err := ReformatDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ReformatDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ReformatDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
