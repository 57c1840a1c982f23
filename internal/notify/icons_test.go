package notify

import (
	"testing"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
)

var allStatuses = []domain.Status{
	domain.StatusNew, domain.StatusValidating,
	domain.StatusAlreadyBenefits, domain.StatusInvalidInput,
	domain.StatusHasAppointment, domain.StatusIneligible,
	domain.StatusValidationFailed, domain.StatusValidated,
	domain.StatusRequiresPrereg,
	domain.StatusFetchingName, domain.StatusInfoFetched, domain.StatusInfoFetchFailed,
	domain.StatusSearchingDates, domain.StatusNoDates, domain.StatusDatesFetchFailed,
	domain.StatusBooking, domain.StatusBooked, domain.StatusNotEligibleForBooking,
	domain.StatusBookingFailed, domain.StatusDateFormatError,
	domain.StatusFetchingDocuments, domain.StatusComplete, domain.StatusDocumentFetchFailed,
	domain.StatusRepeatedlyFailed, domain.StatusProcessingError,
}

func TestIconForStatusCoversAllStatuses(t *testing.T) {
	for _, s := range allStatuses {
		if IconForStatus(s) == "" {
			t.Errorf("no icon for status %q", s)
		}
	}
}

func TestIconForStatus(t *testing.T) {
	cases := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusValidating, "spinner"},
		{domain.StatusBooked, "check-double"},
		{domain.StatusAlreadyBenefits, "star"},
		{domain.StatusHasAppointment, "calendar"},
		{domain.StatusIneligible, "cross"},
		{domain.StatusInfoFetchFailed, "warning"},
		{domain.StatusRepeatedlyFailed, "error"},
		{domain.Status("never-seen"), "dot"},
	}
	for _, tc := range cases {
		if got := IconForStatus(tc.status); got != tc.want {
			t.Errorf("IconForStatus(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
