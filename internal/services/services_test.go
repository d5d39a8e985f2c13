package services_test

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/formdeck/formdeck/internal/models"
	"github.com/formdeck/formdeck/internal/services"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Form{},
		&models.FormResponse{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// registerUser registers through the service so hashes and public ids are real
func registerUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user, err := services.RegisterUser(db, username, username+"@example.com", "Secr3t!pass")
	if err != nil {
		t.Fatalf("Failed to register %s: %v", username, err)
	}
	return user
}

func textQuestions() []models.Question {
	return []models.Question{
		{ID: 1, Label: "Name", Type: models.QuestionTypeText, Required: true},
		{ID: 2, Label: "Feedback", Type: models.QuestionTypeTextarea},
	}
}

func createForm(t *testing.T, db *gorm.DB, ownerID uint64, title string, questions []models.Question) *models.Form {
	t.Helper()

	form, err := services.CreateForm(db, ownerID, services.CreateFormInput{
		Title:     title,
		Questions: questions,
	})
	if err != nil {
		t.Fatalf("Failed to create form %s: %v", title, err)
	}
	return form
}

// fileHeader builds a real multipart.FileHeader carrying content, the way
// a browser upload arrives
func fileHeader(t *testing.T, field, filename, content string) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	reader := multipart.NewReader(&buf, w.Boundary())
	form, err := reader.ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("Failed to read back multipart form: %v", err)
	}
	headers := form.File[field]
	if len(headers) != 1 {
		t.Fatalf("Expected one file header, got %d", len(headers))
	}
	return headers[0]
}
