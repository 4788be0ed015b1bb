package model

import (
	"time"

	"gorm.io/gorm"
)

// Business represents the tenant boundary. All records, notifications and
// broadcast groups are scoped to a business.
type Business struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(200);not null"`
	Address   string         `json:"address" gorm:"type:text"`
	Phone     string         `json:"phone" gorm:"type:varchar(50)"`
	Timezone  string         `json:"timezone" gorm:"type:varchar(50);default:'UTC'"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
