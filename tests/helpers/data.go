package helpers

import (
	"testing"

	"github.com/formdeck/formdeck/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateTestUser creates an account directly in the database
func CreateTestUser(t *testing.T, db *gorm.DB, username, email, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := models.User{
		PublicID:     uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return &user
}

// CreateTestForm creates a form with the given question list
func CreateTestForm(t *testing.T, db *gorm.DB, ownerID uint64, title string, questions []models.Question) *models.Form {
	t.Helper()

	questionsJSON, err := models.NewJSON(questions)
	if err != nil {
		t.Fatalf("Failed to marshal questions: %v", err)
	}

	form := models.Form{
		Title:     title,
		OwnerID:   ownerID,
		Questions: questionsJSON,
		IsActive:  true,
	}
	if err := db.Create(&form).Error; err != nil {
		t.Fatalf("Failed to create form %s: %v", title, err)
	}
	return &form
}

// CreateTestResponse creates a submission with the given answers
func CreateTestResponse(t *testing.T, db *gorm.DB, formID uint64, respondentID *uint64, answers map[string]interface{}) *models.FormResponse {
	t.Helper()

	answersJSON, err := models.NewJSON(answers)
	if err != nil {
		t.Fatalf("Failed to marshal answers: %v", err)
	}

	response := models.FormResponse{
		FormID:       formID,
		RespondentID: respondentID,
		ResponseData: answersJSON,
	}
	if err := db.Create(&response).Error; err != nil {
		t.Fatalf("Failed to create response: %v", err)
	}
	return &response
}
