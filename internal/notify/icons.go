package notify

import "github.com/anemtools/rdvwatcher/internal/core/domain"

// IconForStatus maps a workflow status to a presentation hint. Renderers
// are free to interpret the hints however they like.
func IconForStatus(s domain.Status) string {
	switch s {
	case domain.StatusNew:
		return "dot"
	case domain.StatusValidating, domain.StatusFetchingName,
		domain.StatusSearchingDates, domain.StatusBooking,
		domain.StatusFetchingDocuments:
		return "spinner"
	case domain.StatusValidated, domain.StatusInfoFetched:
		return "check"
	case domain.StatusBooked, domain.StatusComplete:
		return "check-double"
	case domain.StatusAlreadyBenefits:
		return "star"
	case domain.StatusHasAppointment:
		return "calendar"
	case domain.StatusRequiresPrereg, domain.StatusNoDates:
		return "clock"
	case domain.StatusIneligible, domain.StatusNotEligibleForBooking,
		domain.StatusInvalidInput:
		return "cross"
	case domain.StatusValidationFailed, domain.StatusInfoFetchFailed,
		domain.StatusDatesFetchFailed, domain.StatusBookingFailed,
		domain.StatusDateFormatError, domain.StatusDocumentFetchFailed:
		return "warning"
	case domain.StatusRepeatedlyFailed, domain.StatusProcessingError:
		return "error"
	default:
		return "dot"
	}
}
