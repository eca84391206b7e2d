package enums

import "fmt"

// ActionType enumerates the external actions the coordinator can route.
type ActionType string

const (
	ActionPreApprove    ActionType = "pre_approve"
	ActionApprove       ActionType = "approve"
	ActionReject        ActionType = "reject"
	ActionSubmitDetails ActionType = "submit_details"
	ActionReportProblem ActionType = "report_problem"
	ActionRecordPayment ActionType = "record_payment"
	ActionModifyPayment ActionType = "modify_payment"
)

var validActionTypes = []ActionType{
	ActionPreApprove,
	ActionApprove,
	ActionReject,
	ActionSubmitDetails,
	ActionReportProblem,
	ActionRecordPayment,
	ActionModifyPayment,
}

// IsValid reports whether the action type is known.
func (a ActionType) IsValid() bool {
	for _, candidate := range validActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActionType converts raw input into ActionType.
func ParseActionType(value string) (ActionType, error) {
	for _, candidate := range validActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action type %q", value)
}

// ActionJobStatus tracks a queued action through the processor.
type ActionJobStatus string

const (
	ActionJobPending    ActionJobStatus = "pending"
	ActionJobProcessing ActionJobStatus = "processing"
	ActionJobCompleted  ActionJobStatus = "completed"
	ActionJobFailed     ActionJobStatus = "failed"
	ActionJobDead       ActionJobStatus = "dead"
)

// IsTerminal reports whether the job will not be picked up again.
func (s ActionJobStatus) IsTerminal() bool {
	return s == ActionJobCompleted || s == ActionJobFailed || s == ActionJobDead
}
