package models

import (
	"time"
)

// FormResponse is one respondent's submission to a form. ResponseData maps
// question id (decimal string) to the submitted answer; UploadedFiles maps
// question id to the stored file path relative to the upload root.
//
// A response has two states: created without files, then optionally
// created-with-files once the upload pass attaches UploadedFiles. It is
// never mutated after that.
type FormResponse struct {
	ResponseID    uint64  `gorm:"primaryKey;autoIncrement"`
	FormID        uint64  `gorm:"not null;index"`
	Form          *Form   `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE"`
	RespondentID  *uint64 `gorm:"index"`
	Respondent    *User   `gorm:"foreignKey:RespondentID;constraint:OnDelete:SET NULL"`
	ResponseData  JSON    `gorm:"type:json"`
	UploadedFiles JSON    `gorm:"type:json"`
	SubmittedAt   time.Time `gorm:"autoCreateTime;index"`
}

// TableName overrides the table name for FormResponse
func (FormResponse) TableName() string {
	return "form_responses"
}
