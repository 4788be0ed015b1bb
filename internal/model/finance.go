package model

import (
	"time"

	"gorm.io/gorm"
)

// Category groups expenses and incomes for reporting.
type Category struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	BusinessID uint           `json:"business_id" gorm:"index;not null"`
	Name       string         `json:"name" gorm:"type:varchar(100);not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// Expense is a financial outflow record.
type Expense struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	BusinessID  uint           `json:"business_id" gorm:"index;not null"`
	CategoryID  *uint          `json:"category_id,omitempty" gorm:"index"`
	Amount      float64        `json:"amount" gorm:"not null"`
	Date        time.Time      `json:"date" gorm:"index;not null"`
	Description string         `json:"description" gorm:"type:text"`
	CreatedByID *uint          `json:"created_by,omitempty" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Income is a financial inflow record.
type Income struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	BusinessID  uint           `json:"business_id" gorm:"index;not null"`
	CategoryID  *uint          `json:"category_id,omitempty" gorm:"index"`
	Amount      float64        `json:"amount" gorm:"not null"`
	Date        time.Time      `json:"date" gorm:"index;not null"`
	Description string         `json:"description" gorm:"type:text"`
	CreatedByID *uint          `json:"created_by,omitempty" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
