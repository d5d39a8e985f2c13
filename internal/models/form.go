package models

import (
	"time"
)

// Form is an owned template of questions. Questions is stored as a JSON
// column holding the ordered question list exactly as validated at save
// time; it is parsed back with ParseQuestions wherever per-question logic
// is needed (CSV export, file-upload matching).
type Form struct {
	FormID      uint64 `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"size:200;not null"`
	Description string `gorm:"type:text"`
	OwnerID     uint64 `gorm:"not null;index"`
	Owner       *User  `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Questions   JSON   `gorm:"type:json"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Responses []FormResponse `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name for Form
func (Form) TableName() string {
	return "forms"
}
