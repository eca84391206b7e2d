package funding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// SubmitInput is a new funding request for the register of the given type.
type SubmitInput struct {
	RegisterType  string
	Amount        decimal.Decimal
	Currency      enums.Currency
	Reason        string
	RequestedDate time.Time
	Submitter     string
}

// SubmitDetailsInput carries the payment method chosen for the funds.
type SubmitDetailsInput struct {
	RequestID string
	Actor     string
	Details   types.MethodDetails
}

// ReportProblemInput records an issue that blocks approval.
type ReportProblemInput struct {
	RequestID   string
	Actor       string
	Type        string
	Description string
}

// ListFilter narrows ListByRegister.
type ListFilter struct {
	Status enums.FundingStatus
	Limit  int
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Outcome is the result of a transition. Replays against a finalized request
// are not errors: AlreadyFinalized is set and Notice explains it to the actor.
type Outcome struct {
	Request          *models.FundingRequest `json:"request"`
	AlreadyFinalized bool                   `json:"already_finalized"`
	Notice           string                 `json:"notice,omitempty"`
	Notifications    []notify.Intent        `json:"notifications,omitempty"`
}

// StateConflictDetails is attached to STATE_CONFLICT errors.
type StateConflictDetails struct {
	RequestID string             `json:"request_id"`
	Stage     enums.FundingStage `json:"stage"`
	Action    string             `json:"action"`
}
