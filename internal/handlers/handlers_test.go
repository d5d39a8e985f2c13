package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formdeck/formdeck/internal/handlers"
	"github.com/formdeck/formdeck/internal/middleware"
	"github.com/formdeck/formdeck/internal/models"
	"github.com/formdeck/formdeck/internal/storage"
	"github.com/formdeck/formdeck/internal/types"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
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

// newTestApp wires the full API surface the way cmd/server does, minus
// metrics and swagger
func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	sessions := session.New(session.Config{
		KeyLookup:      "cookie:formdeck_session",
		Expiration:     time.Hour,
		CookieHTTPOnly: true,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := err.Error()
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			if e, ok := err.(*types.CustomError); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"message": message, "ok": false})
		},
	})

	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())
	api.Use(middleware.LoadUser(sessions, db))
	api.Use(middleware.RequireCSRF(sessions))

	authHandler := &handlers.AuthHandler{DB: db, Sessions: sessions}
	formsHandler := &handlers.FormsHandler{DB: db}
	responsesHandler := &handlers.ResponsesHandler{DB: db, Store: store}

	api.Get("/auth", authHandler.GetAuth)
	api.Post("/auth", authHandler.PostAuth)

	forms := api.Group("/forms", middleware.RequireAuth())
	forms.Get("/", formsHandler.ListForms)
	forms.Post("/", formsHandler.CreateForm)
	forms.Get("/:id", formsHandler.GetForm)
	forms.Put("/:id", formsHandler.UpdateForm)
	forms.Patch("/:id", formsHandler.UpdateForm)
	forms.Delete("/:id", formsHandler.DeleteForm)
	forms.Get("/:id/export_csv", formsHandler.ExportCSV)

	forms.Get("/:formId/responses", responsesHandler.ListResponses)
	forms.Post("/:formId/responses", responsesHandler.CreateResponse)
	forms.Get("/:formId/responses/:id/download/:questionId", responsesHandler.DownloadFile)

	return app, db
}

// testSession carries one client's cookies and CSRF token across requests
type testSession struct {
	app     *fiber.App
	cookies map[string]string
	csrf    string
}

func newSession(t *testing.T, app *fiber.App) *testSession {
	t.Helper()

	s := &testSession{app: app, cookies: map[string]string{}}

	resp := s.do(t, http.MethodGet, "/api/auth", nil, "")
	var payload struct {
		CSRFToken string `json:"csrfToken"`
	}
	decodeJSON(t, resp, &payload)
	if payload.CSRFToken == "" {
		t.Fatal("Expected a CSRF token from GET /api/auth")
	}
	s.csrf = payload.CSRFToken
	return s
}

func (s *testSession) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, s.csrf)
	}
	for name, value := range s.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	for _, c := range resp.Cookies() {
		s.cookies[c.Name] = c.Value
	}
	return resp
}

func (s *testSession) doJSON(t *testing.T, method, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return s.do(t, method, path, bytes.NewReader(body), fiber.MIMEApplicationJSON)
}

func (s *testSession) register(t *testing.T, username string) {
	t.Helper()

	resp := s.doJSON(t, http.MethodPost, "/api/auth", map[string]string{
		"action":   "register",
		"username": username,
		"email":    username + "@example.com",
		"password": "Secr3t!pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Registration of %s failed with status %d: %s", username, resp.StatusCode, readBody(t, resp))
	}
}

func decodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	resp.Body.Close()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("Failed to decode JSON: %v. Body: %s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	resp.Body.Close()
	return string(body)
}

func surveyPayload() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Customer Survey",
		"description": "Tell us things",
		"questions": []map[string]interface{}{
			{"id": 1, "label": "Name", "type": "text", "required": true},
			{"id": 2, "label": "Feedback", "type": "textarea"},
		},
	}
}

func uploadPayload() map[string]interface{} {
	return map[string]interface{}{
		"title": "Job Application",
		"questions": []map[string]interface{}{
			{"id": 1, "label": "Name", "type": "text", "required": true},
			{"id": 2, "label": "Resume", "type": "file"},
		},
	}
}

type formView struct {
	ID        uint64                   `json:"id"`
	Title     string                   `json:"title"`
	IsActive  bool                     `json:"is_active"`
	Owner     map[string]interface{}   `json:"owner"`
	Questions []map[string]interface{} `json:"questions"`
}

type responseView struct {
	ID            uint64                 `json:"id"`
	Form          uint64                 `json:"form"`
	Respondent    map[string]interface{} `json:"respondent"`
	ResponseData  map[string]interface{} `json:"response_data"`
	UploadedFiles map[string]string      `json:"uploaded_files"`
}

func (s *testSession) createForm(t *testing.T, payload map[string]interface{}) formView {
	t.Helper()

	resp := s.doJSON(t, http.MethodPost, "/api/forms", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Form creation failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var form formView
	decodeJSON(t, resp, &form)
	return form
}

// TestAuthFlow covers register, logout and login on one session
func TestAuthFlow(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)

	s.register(t, "ada")

	// Identity is reported on the auth gateway
	resp := s.do(t, http.MethodGet, "/api/auth", nil, "")
	var who struct {
		IsAuthenticated bool                   `json:"isAuthenticated"`
		User            map[string]interface{} `json:"user"`
	}
	decodeJSON(t, resp, &who)
	if !who.IsAuthenticated {
		t.Fatal("Expected an authenticated session after registration")
	}
	if who.User["username"] != "ada" {
		t.Errorf("Expected user ada, got %v", who.User)
	}

	// Logout destroys the session
	resp = s.doJSON(t, http.MethodPost, "/api/auth", map[string]string{"action": "logout"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Logout failed with status %d", resp.StatusCode)
	}

	// The destroyed session lost its CSRF token too; fetch a fresh one
	resp = s.do(t, http.MethodGet, "/api/auth", nil, "")
	var after struct {
		CSRFToken       string `json:"csrfToken"`
		IsAuthenticated bool   `json:"isAuthenticated"`
	}
	decodeJSON(t, resp, &after)
	if after.IsAuthenticated {
		t.Error("Expected anonymous session after logout")
	}
	s.csrf = after.CSRFToken

	// Login again
	resp = s.doJSON(t, http.MethodPost, "/api/auth", map[string]string{
		"action":   "login",
		"username": "ada",
		"password": "Secr3t!pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}
}

func TestAuthBadCredentialsAndActions(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)
	s.register(t, "ada")

	resp := s.doJSON(t, http.MethodPost, "/api/auth", map[string]string{
		"action":   "login",
		"username": "ada",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", resp.StatusCode)
	}

	resp = s.doJSON(t, http.MethodPost, "/api/auth", map[string]string{"action": "frobnicate"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", resp.StatusCode)
	}
}

// TestCSRFEnforcedOnMutations verifies mutating requests without the token
// are refused while GETs pass
func TestCSRFEnforcedOnMutations(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)
	s.register(t, "ada")

	goodToken := s.csrf
	s.csrf = ""
	resp := s.doJSON(t, http.MethodPost, "/api/forms", surveyPayload())
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 without CSRF token, got %d", resp.StatusCode)
	}

	s.csrf = "not-the-token"
	resp = s.doJSON(t, http.MethodPost, "/api/forms", surveyPayload())
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong CSRF token, got %d", resp.StatusCode)
	}

	// GET is exempt
	resp = s.do(t, http.MethodGet, "/api/forms", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected GET to pass without CSRF token, got %d", resp.StatusCode)
	}

	s.csrf = goodToken
	resp = s.doJSON(t, http.MethodPost, "/api/forms", surveyPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201 with the session token, got %d", resp.StatusCode)
	}
}

func TestFormsRequireAuth(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)

	resp := s.do(t, http.MethodGet, "/api/forms", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous listing, got %d", resp.StatusCode)
	}

	resp = s.doJSON(t, http.MethodPost, "/api/forms", surveyPayload())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous creation, got %d", resp.StatusCode)
	}
}

func TestFormCRUD(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)
	s.register(t, "ada")

	form := s.createForm(t, surveyPayload())
	if form.Title != "Customer Survey" {
		t.Errorf("Unexpected title: %q", form.Title)
	}
	if !form.IsActive {
		t.Error("Expected the form to default active")
	}
	if form.Owner["username"] != "ada" {
		t.Errorf("Expected owner ada, got %v", form.Owner)
	}
	if len(form.Questions) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(form.Questions))
	}

	// Listing shows it
	resp := s.do(t, http.MethodGet, "/api/forms", nil, "")
	var forms []formView
	decodeJSON(t, resp, &forms)
	if len(forms) != 1 || forms[0].ID != form.ID {
		t.Errorf("Expected the created form in the listing, got %v", forms)
	}

	// Partial update via PATCH
	resp = s.doJSON(t, http.MethodPatch, "/api/forms/1", map[string]interface{}{
		"title": "Renamed Survey",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Update failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var updated formView
	decodeJSON(t, resp, &updated)
	if updated.Title != "Renamed Survey" {
		t.Errorf("Title not updated: %q", updated.Title)
	}
	if len(updated.Questions) != 2 {
		t.Error("Partial update must not clobber questions")
	}

	// Delete
	resp = s.do(t, http.MethodDelete, "/api/forms/1", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Delete failed with status %d", resp.StatusCode)
	}
	resp = s.do(t, http.MethodGet, "/api/forms/1", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestFormValidationErrors(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)
	s.register(t, "ada")

	resp := s.doJSON(t, http.MethodPost, "/api/forms", map[string]interface{}{
		"title": "No questions",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing questions, got %d", resp.StatusCode)
	}

	resp = s.doJSON(t, http.MethodPost, "/api/forms", map[string]interface{}{
		"title": "Bad question",
		"questions": []map[string]interface{}{
			{"id": 1, "label": "Q", "type": "slider"},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown question type, got %d", resp.StatusCode)
	}
}

// TestFormOwnership verifies non-owners can fetch but not modify
func TestFormOwnership(t *testing.T) {
	app, _ := newTestApp(t)

	owner := newSession(t, app)
	owner.register(t, "owner")
	form := owner.createForm(t, surveyPayload())

	other := newSession(t, app)
	other.register(t, "other")

	// Fetch is open to any authenticated user
	resp := other.do(t, http.MethodGet, "/api/forms/1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected non-owner fetch to succeed, got %d", resp.StatusCode)
	}

	// But it does not appear in their listing
	resp = other.do(t, http.MethodGet, "/api/forms", nil, "")
	var forms []formView
	decodeJSON(t, resp, &forms)
	if len(forms) != 0 {
		t.Errorf("Expected empty listing for non-owner, got %v", forms)
	}

	// Modification is owner only
	resp = other.doJSON(t, http.MethodPut, "/api/forms/1", map[string]interface{}{"title": "Hijack"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner update, got %d", resp.StatusCode)
	}
	resp = other.do(t, http.MethodDelete, "/api/forms/1", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner delete, got %d", resp.StatusCode)
	}

	_ = form
}

func TestSubmitResponseJSON(t *testing.T) {
	app, _ := newTestApp(t)

	owner := newSession(t, app)
	owner.register(t, "owner")
	owner.createForm(t, surveyPayload())

	respondent := newSession(t, app)
	respondent.register(t, "respondent")

	resp := respondent.doJSON(t, http.MethodPost, "/api/forms/1/responses", map[string]interface{}{
		"response_data": map[string]interface{}{"1": "Ada", "2": "All good"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Submission failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var created responseView
	decodeJSON(t, resp, &created)
	if created.ResponseData["1"] != "Ada" {
		t.Errorf("Answer did not round-trip: %v", created.ResponseData)
	}
	if created.Respondent["username"] != "respondent" {
		t.Errorf("Expected respondent identity, got %v", created.Respondent)
	}
}

// TestSubmitResponseMultipart covers the browser upload path: response_data
// as a JSON-encoded form value plus a file part keyed by question id
func TestSubmitResponseMultipart(t *testing.T) {
	app, _ := newTestApp(t)

	owner := newSession(t, app)
	owner.register(t, "owner")
	owner.createForm(t, uploadPayload())

	respondent := newSession(t, app)
	respondent.register(t, "respondent")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("response_data", `{"1": "Ada"}`); err != nil {
		t.Fatalf("Failed to write field: %v", err)
	}
	fw, err := w.CreateFormFile("2", "resume.pdf")
	if err != nil {
		t.Fatalf("Failed to create file part: %v", err)
	}
	if _, err := fw.Write([]byte("pdf bytes")); err != nil {
		t.Fatalf("Failed to write file part: %v", err)
	}
	w.Close()

	resp := respondent.do(t, http.MethodPost, "/api/forms/1/responses", &buf, w.FormDataContentType())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Submission failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var created responseView
	decodeJSON(t, resp, &created)
	if created.ResponseData["1"] != "Ada" {
		t.Errorf("Answer did not round-trip: %v", created.ResponseData)
	}
	url, ok := created.UploadedFiles["2"]
	if !ok {
		t.Fatalf("Expected an uploaded file entry, got %v", created.UploadedFiles)
	}
	if !strings.HasPrefix(url, "/api/forms/1/responses/") || !strings.Contains(url, "/download/2/") {
		t.Errorf("Unexpected download URL: %q", url)
	}

	// The owner downloads it back
	resp = owner.do(t, http.MethodGet, "/api/forms/1/responses/1/download/2", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Download failed with status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	disposition := resp.Header.Get(fiber.HeaderContentDisposition)
	if !strings.Contains(disposition, "resume.pdf") {
		t.Errorf("Expected attachment disposition with filename, got %q", disposition)
	}
	if body := readBody(t, resp); body != "pdf bytes" {
		t.Errorf("Downloaded content mismatch: %q", body)
	}

	// The respondent may not
	resp = respondent.do(t, http.MethodGet, "/api/forms/1/responses/1/download/2", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner download, got %d", resp.StatusCode)
	}
}

// TestListResponsesOwnerOnly verifies listing is restricted to the owner
// and ordered newest first
func TestListResponsesOwnerOnly(t *testing.T) {
	app, _ := newTestApp(t)

	owner := newSession(t, app)
	owner.register(t, "owner")
	owner.createForm(t, surveyPayload())

	respondent := newSession(t, app)
	respondent.register(t, "respondent")

	for _, answer := range []string{"first", "second"} {
		resp := respondent.doJSON(t, http.MethodPost, "/api/forms/1/responses", map[string]interface{}{
			"response_data": map[string]interface{}{"1": answer},
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Submission failed with status %d", resp.StatusCode)
		}
	}

	// Respondent cannot list
	resp := respondent.do(t, http.MethodGet, "/api/forms/1/responses", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner listing, got %d", resp.StatusCode)
	}

	// Owner sees both, newest first
	resp = owner.do(t, http.MethodGet, "/api/forms/1/responses", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Listing failed with status %d", resp.StatusCode)
	}
	var responses []responseView
	decodeJSON(t, resp, &responses)
	if len(responses) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(responses))
	}
	if responses[0].ResponseData["1"] != "second" {
		t.Errorf("Expected newest first, got %v", responses[0].ResponseData)
	}
}

func TestExportCSVEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	owner := newSession(t, app)
	owner.register(t, "owner")
	owner.createForm(t, surveyPayload())

	respondent := newSession(t, app)
	respondent.register(t, "respondent")
	resp := respondent.doJSON(t, http.MethodPost, "/api/forms/1/responses", map[string]interface{}{
		"response_data": map[string]interface{}{"1": "Ada", "2": "Fine"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Submission failed with status %d", resp.StatusCode)
	}

	// Non-owner export is refused
	resp = respondent.do(t, http.MethodGet, "/api/forms/1/export_csv", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner export, got %d", resp.StatusCode)
	}

	resp = owner.do(t, http.MethodGet, "/api/forms/1/export_csv", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Export failed with status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv content type, got %q", ct)
	}
	disposition := resp.Header.Get(fiber.HeaderContentDisposition)
	if !strings.Contains(disposition, "Customer Survey_responses.csv") {
		t.Errorf("Expected attachment filename in disposition, got %q", disposition)
	}

	body := readBody(t, resp)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Respondent,Submitted At,Name,Feedback") {
		t.Errorf("Unexpected CSV header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "respondent") || !strings.Contains(lines[1], "Ada") {
		t.Errorf("Unexpected CSV row: %q", lines[1])
	}
}

func TestResponseRoutesNotFound(t *testing.T) {
	app, _ := newTestApp(t)
	s := newSession(t, app)
	s.register(t, "ada")

	resp := s.doJSON(t, http.MethodPost, "/api/forms/42/responses", map[string]interface{}{
		"response_data": map[string]interface{}{},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 submitting to unknown form, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodGet, "/api/forms/42/responses", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 listing unknown form, got %d", resp.StatusCode)
	}

	s.createForm(t, uploadPayload())
	resp = s.do(t, http.MethodGet, "/api/forms/1/responses/7/download/2", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown response download, got %d", resp.StatusCode)
	}
}
