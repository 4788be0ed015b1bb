package model

import (
	"time"

	"gorm.io/datatypes"
)

// Activity action types.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Activity is an append-only audit-log entry. The actor may be nil when the
// acting user has since been deleted.
type Activity struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	BusinessID uint           `json:"business" gorm:"index;not null"`
	ActorID    *uint          `json:"actor_id" gorm:"index"`
	ActionType string         `json:"action_type" gorm:"type:varchar(100)"`
	ModelName  string         `json:"model_name" gorm:"type:varchar(100)"`
	ObjectID   string         `json:"object_id" gorm:"type:varchar(100)"`
	Before     datatypes.JSON `json:"before"`
	After      datatypes.JSON `json:"after"`
	Timestamp  time.Time      `json:"timestamp" gorm:"autoCreateTime"`
}
