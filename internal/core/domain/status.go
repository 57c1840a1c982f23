package domain

// Status represents a member's position in the booking workflow.
//
// Lifecycle:
//
//	new → validating → {already_benefits, invalid_input, has_appointment,
//	                    ineligible, validation_failed, validated, requires_prereg}
//	    → fetching_name → {info_fetched, info_fetch_failed}
//	    → searching_dates → {no_dates, dates_fetch_failed, booking}
//	    → booking → {booked, not_eligible_for_booking, booking_failed, date_format_error}
//	    → fetching_documents → {complete, document_fetch_failed}
//
// already_benefits is absorbing: the member is only re-validated, never
// advanced. repeatedly_failed is entered by the monitor once the member's
// consecutive failure count crosses the threshold.
type Status string

const (
	StatusNew        Status = "new"
	StatusValidating Status = "validating"

	StatusAlreadyBenefits  Status = "already_benefits"
	StatusInvalidInput     Status = "invalid_input"
	StatusHasAppointment   Status = "has_appointment"
	StatusIneligible       Status = "ineligible"
	StatusValidationFailed Status = "validation_failed"
	StatusValidated        Status = "validated"
	StatusRequiresPrereg   Status = "requires_prereg"

	StatusFetchingName    Status = "fetching_name"
	StatusInfoFetched     Status = "info_fetched"
	StatusInfoFetchFailed Status = "info_fetch_failed"

	StatusSearchingDates   Status = "searching_dates"
	StatusNoDates          Status = "no_dates"
	StatusDatesFetchFailed Status = "dates_fetch_failed"

	StatusBooking               Status = "booking"
	StatusBooked                Status = "booked"
	StatusNotEligibleForBooking Status = "not_eligible_for_booking"
	StatusBookingFailed         Status = "booking_failed"
	StatusDateFormatError       Status = "date_format_error"

	StatusFetchingDocuments   Status = "fetching_documents"
	StatusComplete            Status = "complete"
	StatusDocumentFetchFailed Status = "document_fetch_failed"

	StatusRepeatedlyFailed Status = "repeatedly_failed"
	StatusProcessingError  Status = "processing_error"
)

// IsAbsorbing returns true for statuses the monitor never advances past.
func (s Status) IsAbsorbing() bool {
	return s == StatusAlreadyBenefits
}

// DocumentCheckOnly returns true for stable statuses where the periodic
// cycle only re-checks documents instead of re-running the full pipeline.
func (s Status) DocumentCheckOnly() bool {
	switch s {
	case StatusComplete, StatusHasAppointment, StatusIneligible,
		StatusNotEligibleForBooking, StatusInvalidInput:
		return true
	default:
		return false
	}
}

// BlocksPipeline returns true when validation left the member in a state
// from which the remaining stages must not run in this pass.
func (s Status) BlocksPipeline() bool {
	switch s {
	case StatusAlreadyBenefits, StatusIneligible, StatusInvalidInput,
		StatusHasAppointment, StatusNotEligibleForBooking, StatusValidationFailed:
		return true
	default:
		return false
	}
}

// AllowsBooking returns true for statuses from which a search-and-book
// attempt may proceed, provided the member's correlation ids are present.
func (s Status) AllowsBooking() bool {
	switch s {
	case StatusInfoFetched, StatusValidated, StatusNoDates,
		StatusDatesFetchFailed, StatusRequiresPrereg:
		return true
	default:
		return false
	}
}

// DocumentWorthy returns true for statuses after which the periodic cycle
// attempts the document downloads.
func (s Status) DocumentWorthy() bool {
	switch s {
	case StatusBooked, StatusComplete, StatusDocumentFetchFailed:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status describes an error outcome. Used
// to pick the stricter activity-detail truncation.
func (s Status) IsFailure() bool {
	switch s {
	case StatusValidationFailed, StatusInfoFetchFailed, StatusDatesFetchFailed,
		StatusBookingFailed, StatusDateFormatError, StatusDocumentFetchFailed,
		StatusInvalidInput, StatusIneligible, StatusNotEligibleForBooking,
		StatusRepeatedlyFailed, StatusProcessingError:
		return true
	default:
		return false
	}
}
