package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// FundingRequest asks for money to be added to a register.
type FundingRequest struct {
	ID              string              `gorm:"column:id;primaryKey"`
	RegisterID      uuid.UUID           `gorm:"column:register_id;type:uuid;not null"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null"`
	Reason          string              `gorm:"column:reason;not null"`
	RequestedDate   time.Time           `gorm:"column:requested_date;type:date;not null"`
	Submitter       string              `gorm:"column:submitter;not null"`
	Status          enums.FundingStatus `gorm:"column:status;not null"`
	Stage           enums.FundingStage  `gorm:"column:stage;not null"`
	Method          *enums.PaymentMode  `gorm:"column:method"`
	MethodDetails   types.MethodDetails `gorm:"column:method_details;type:jsonb"`
	BalanceApplied  bool                `gorm:"column:balance_applied;not null;default:false"`
	RejectionReason *string             `gorm:"column:rejection_reason"`
	PreApprovedBy   *string             `gorm:"column:pre_approved_by"`
	FinalizedBy     *string             `gorm:"column:finalized_by"`
	FinalizedAt     *time.Time          `gorm:"column:finalized_at"`
	CreatedAt       time.Time           `gorm:"column:created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at"`

	History []FundingHistory `gorm:"foreignKey:RequestID;references:ID"`
	Issues  []FundingIssue   `gorm:"foreignKey:RequestID;references:ID"`
}

func (FundingRequest) TableName() string { return "funding_requests" }

// FundingHistory records each workflow transition.
type FundingHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	RequestID  string             `gorm:"column:request_id;not null"`
	Stage      enums.FundingStage `gorm:"column:stage;not null"`
	Actor      string             `gorm:"column:actor;not null"`
	Details    string             `gorm:"column:details"`
	OccurredAt time.Time          `gorm:"column:occurred_at;not null"`
}

func (FundingHistory) TableName() string { return "funding_history" }

// FundingIssue is a problem raised against a request before approval.
type FundingIssue struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	RequestID   string     `gorm:"column:request_id;not null"`
	Type        string     `gorm:"column:type;not null"`
	Description string     `gorm:"column:description;not null"`
	ReportedBy  string     `gorm:"column:reported_by;not null"`
	ReportedAt  time.Time  `gorm:"column:reported_at;not null"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`
}

func (FundingIssue) TableName() string { return "funding_issues" }
