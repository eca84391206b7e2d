package enums

import "fmt"

// FundingStatus is the user-facing status of a funding request.
type FundingStatus string

const (
	FundingStatusPending         FundingStatus = "En attente"
	FundingStatusPreApproved     FundingStatus = "Pré-approuvé"
	FundingStatusDetailsProvided FundingStatus = "Détails fournis"
	FundingStatusValidated       FundingStatus = "Validé"
	FundingStatusRejected        FundingStatus = "Rejeté"
)

var validFundingStatuses = []FundingStatus{
	FundingStatusPending,
	FundingStatusPreApproved,
	FundingStatusDetailsProvided,
	FundingStatusValidated,
	FundingStatusRejected,
}

// String implements fmt.Stringer.
func (s FundingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FundingStatus.
func (s FundingStatus) IsValid() bool {
	for _, candidate := range validFundingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s FundingStatus) IsTerminal() bool {
	return s == FundingStatusValidated || s == FundingStatusRejected
}

// OpenFundingStatuses lists the statuses that still accept transitions.
func OpenFundingStatuses() []FundingStatus {
	return []FundingStatus{
		FundingStatusPending,
		FundingStatusPreApproved,
		FundingStatusDetailsProvided,
	}
}

// ParseFundingStatus converts raw input into a FundingStatus.
func ParseFundingStatus(value string) (FundingStatus, error) {
	for _, candidate := range validFundingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid funding status %q", value)
}

// FundingStage is the workflow position of a funding request.
type FundingStage string

const (
	FundingStageInitial          FundingStage = "initial_request"
	FundingStagePreApproved      FundingStage = "pre_approved"
	FundingStageDetailsSubmitted FundingStage = "details_submitted"
	FundingStageProblemReported  FundingStage = "problem_reported"
	FundingStageApproved         FundingStage = "approved"
	FundingStageRejected         FundingStage = "rejected"
)

var validFundingStages = []FundingStage{
	FundingStageInitial,
	FundingStagePreApproved,
	FundingStageDetailsSubmitted,
	FundingStageProblemReported,
	FundingStageApproved,
	FundingStageRejected,
}

// String implements fmt.Stringer.
func (s FundingStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FundingStage.
func (s FundingStage) IsValid() bool {
	for _, candidate := range validFundingStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the stage ends the workflow.
func (s FundingStage) IsTerminal() bool {
	return s == FundingStageApproved || s == FundingStageRejected
}
