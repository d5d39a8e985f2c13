package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/formdeck/formdeck/internal/logging"
	"github.com/formdeck/formdeck/internal/models"
	"github.com/formdeck/formdeck/internal/storage"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// ResponseOut is the serialized response. UploadedFiles carries download
// URLs, never storage paths; it is an empty map when nothing was uploaded.
type ResponseOut struct {
	ID            uint64                 `json:"id"`
	Form          uint64                 `json:"form"`
	Respondent    *models.PublicUser     `json:"respondent"`
	ResponseData  map[string]interface{} `json:"response_data"`
	UploadedFiles map[string]string      `json:"uploaded_files"`
	SubmittedAt   time.Time              `json:"submitted_at"`
}

// DownloadURL builds the per-question file download path used in response
// serialization and CSV export.
func DownloadURL(formID, responseID uint64, questionKey string) string {
	return fmt.Sprintf("/api/forms/%d/responses/%d/download/%s/", formID, responseID, questionKey)
}

// SerializeResponse builds the client view of a response. The Respondent
// association must be loaded when present; a nil respondent serializes as
// null ("Anonymous" in the exporter).
func SerializeResponse(r *models.FormResponse) (ResponseOut, error) {
	out := ResponseOut{
		ID:            r.ResponseID,
		Form:          r.FormID,
		ResponseData:  map[string]interface{}{},
		UploadedFiles: map[string]string{},
		SubmittedAt:   r.SubmittedAt,
	}

	if len(r.ResponseData.JSON) > 0 {
		if err := json.Unmarshal(r.ResponseData.JSON, &out.ResponseData); err != nil {
			return ResponseOut{}, fmt.Errorf("malformed response_data column: %w", err)
		}
	}

	stored, err := storedFiles(r)
	if err != nil {
		return ResponseOut{}, err
	}
	for key := range stored {
		out.UploadedFiles[key] = DownloadURL(r.FormID, r.ResponseID, key)
	}

	if r.Respondent != nil {
		pub := r.Respondent.Public()
		out.Respondent = &pub
	}
	return out, nil
}

// ListResponses returns a form's responses, most recent first.
func ListResponses(db *gorm.DB, formID uint64) ([]models.FormResponse, error) {
	var responses []models.FormResponse
	err := db.Clauses(hints.Comment("select", "responses newest first")).
		Preload("Respondent").
		Where("form_id = ?", formID).
		Order("submitted_at DESC, response_id DESC").
		Find(&responses).Error
	return responses, err
}

// CreateResponse persists a submission in two steps: the row is written
// first so its id can key the file storage paths, then any uploads for
// file-typed questions are stored and attached in a single update. The
// attach step is idempotent: re-running it writes the same paths.
//
// File errors are all-or-nothing: the first failed write aborts the
// request and no uploaded_files map is persisted. The bare response row
// remains; files already written sit on deterministic paths and are
// overwritten by a retry.
func CreateResponse(db *gorm.DB, store *storage.FileStore, form *models.Form, respondentID uint64, responseData map[string]interface{}, files map[string]*multipart.FileHeader) (*models.FormResponse, error) {
	if responseData == nil {
		responseData = map[string]interface{}{}
	}
	data, err := models.NewJSON(responseData)
	if err != nil {
		return nil, fmt.Errorf("%w: response_data is not serializable", ErrInvalid)
	}

	response := models.FormResponse{
		FormID:       form.FormID,
		RespondentID: &respondentID,
		ResponseData: data,
	}
	if err := db.Create(&response).Error; err != nil {
		return nil, err
	}

	questions, err := models.ParseQuestions(form.Questions)
	if err != nil {
		return nil, err
	}

	uploaded := map[string]string{}
	for _, q := range questions {
		if q.Type != models.QuestionTypeFile {
			continue
		}
		header, ok := files[q.Key()]
		if ok && header != nil {
			path, err := saveUpload(store, form.FormID, response.ResponseID, header)
			if err != nil {
				return nil, fmt.Errorf("failed to store file for question %s: %w", q.Key(), err)
			}
			uploaded[q.Key()] = path
		}
	}

	if len(uploaded) > 0 {
		files, err := models.NewJSON(uploaded)
		if err != nil {
			return nil, err
		}
		if err := db.Model(&response).Update("uploaded_files", files).Error; err != nil {
			return nil, err
		}
		response.UploadedFiles = files
		logging.SLog.Infof("Response %d to form %d stored %d file(s)", response.ResponseID, form.FormID, len(uploaded))
	}

	if err := db.Preload("Respondent").First(&response, response.ResponseID).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

// ResolveDownload maps (form, response, question) onto an absolute file
// path and attachment filename. Every miss — wrong form/response pair,
// unknown question key, or a dangling database reference whose backing
// file is gone — surfaces as ErrNotFound.
func ResolveDownload(db *gorm.DB, store *storage.FileStore, formID, responseID uint64, questionID string) (string, string, error) {
	var response models.FormResponse
	err := db.Where("response_id = ? AND form_id = ?", responseID, formID).First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}

	stored, err := storedFiles(&response)
	if err != nil {
		return "", "", err
	}
	path, ok := stored[questionID]
	if !ok {
		return "", "", ErrNotFound
	}
	if !store.Exists(path) {
		logging.SLog.Warnf("Dangling file reference: response=%d question=%s path=%s", responseID, questionID, path)
		return "", "", ErrNotFound
	}

	abs, err := store.Resolve(path)
	if err != nil {
		return "", "", err
	}
	return abs, filepath.Base(path), nil
}

// storedFiles decodes the uploaded_files column into question key ->
// stored path.
func storedFiles(r *models.FormResponse) (map[string]string, error) {
	stored := map[string]string{}
	if len(r.UploadedFiles.JSON) == 0 {
		return stored, nil
	}
	if err := json.Unmarshal(r.UploadedFiles.JSON, &stored); err != nil {
		return nil, fmt.Errorf("malformed uploaded_files column: %w", err)
	}
	return stored, nil
}

func saveUpload(store *storage.FileStore, formID, responseID uint64, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return store.Save(formID, responseID, header.Filename, f)
}
