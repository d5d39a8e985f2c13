package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formdeck/formdeck/internal/logging"
	"github.com/formdeck/formdeck/internal/models"
	"gorm.io/gorm"
)

// CreateFormInput is the client payload for form creation. Any
// client-supplied owner field is ignored by the handler; the owner always
// comes from the session identity.
type CreateFormInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Questions   []models.Question `json:"questions"`
	IsActive    *bool             `json:"is_active"`
}

// UpdateFormInput carries partial updates; nil fields are left untouched
// (PUT and PATCH share it, PUT simply sends every field).
type UpdateFormInput struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Questions   *[]models.Question `json:"questions"`
	IsActive    *bool              `json:"is_active"`
}

// FormOut is the serialized form.
type FormOut struct {
	ID          uint64            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Owner       models.PublicUser `json:"owner"`
	Questions   []models.Question `json:"questions"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SerializeForm builds the client view of a form. The Owner association
// must be loaded.
func SerializeForm(form *models.Form) (FormOut, error) {
	questions, err := models.ParseQuestions(form.Questions)
	if err != nil {
		return FormOut{}, err
	}
	out := FormOut{
		ID:          form.FormID,
		Title:       form.Title,
		Description: form.Description,
		Questions:   questions,
		IsActive:    form.IsActive,
		CreatedAt:   form.CreatedAt,
		UpdatedAt:   form.UpdatedAt,
	}
	if form.Owner != nil {
		out.Owner = form.Owner.Public()
	}
	return out, nil
}

// ListForms returns the forms owned by ownerID, newest first. There is no
// cross-user visibility on listing.
func ListForms(db *gorm.DB, ownerID uint64) ([]models.Form, error) {
	var forms []models.Form
	err := db.Preload("Owner").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, form_id DESC").
		Find(&forms).Error
	return forms, err
}

// CreateForm validates the payload and persists a new form owned by
// ownerID.
func CreateForm(db *gorm.DB, ownerID uint64, input CreateFormInput) (*models.Form, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if err := models.ValidateQuestions(input.Questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	questions, err := models.NewJSON(input.Questions)
	if err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	form := models.Form{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		OwnerID:     ownerID,
		Questions:   questions,
		IsActive:    isActive,
	}
	if err := db.Create(&form).Error; err != nil {
		return nil, err
	}
	if err := db.Preload("Owner").First(&form, form.FormID).Error; err != nil {
		return nil, err
	}

	logging.SLog.Infof("Form created: id=%d owner=%d title=%q", form.FormID, ownerID, form.Title)
	return &form, nil
}

// GetForm loads a form by id with its owner. Any authenticated user may
// retrieve a form by id; respondents need it to render the questions.
func GetForm(db *gorm.DB, formID uint64) (*models.Form, error) {
	var form models.Form
	if err := db.Preload("Owner").First(&form, formID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &form, nil
}

// UpdateForm applies a partial update. Only the owner may update.
func UpdateForm(db *gorm.DB, formID, userID uint64, input UpdateFormInput) (*models.Form, error) {
	form, err := GetForm(db, formID)
	if err != nil {
		return nil, err
	}
	if form.OwnerID != userID {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalid)
		}
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Questions != nil {
		if err := models.ValidateQuestions(*input.Questions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		questions, err := models.NewJSON(*input.Questions)
		if err != nil {
			return nil, err
		}
		updates["questions"] = questions
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := db.Model(form).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return GetForm(db, formID)
}

// DeleteForm removes a form and all its responses. Only the owner may
// delete. Responses are removed explicitly so behavior does not depend on
// driver-level cascade support.
func DeleteForm(db *gorm.DB, formID, userID uint64) error {
	form, err := GetForm(db, formID)
	if err != nil {
		return err
	}
	if form.OwnerID != userID {
		return ErrForbidden
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("form_id = ?", formID).Delete(&models.FormResponse{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Form{}, formID).Error
	})
	if err != nil {
		return err
	}

	logging.SLog.Infof("Form deleted: id=%d owner=%d", formID, userID)
	return nil
}
