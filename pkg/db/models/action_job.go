package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// ActionJob is a durable, retryable workflow action queued by the API.
type ActionJob struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ActionType    enums.ActionType      `gorm:"column:action_type;not null"`
	TargetID      string                `gorm:"column:target_id;not null"`
	Actor         string                `gorm:"column:actor;not null"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.ActionJobStatus `gorm:"column:status;not null"`
	AttemptCount  int                   `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt time.Time             `gorm:"column:next_attempt_at;not null"`
	LockedBy      *string               `gorm:"column:locked_by"`
	LockedAt      *time.Time            `gorm:"column:locked_at"`
	LastError     *string               `gorm:"column:last_error"`
	Result        json.RawMessage       `gorm:"column:result;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at"`
	UpdatedAt     time.Time             `gorm:"column:updated_at"`
}

func (ActionJob) TableName() string { return "action_jobs" }
