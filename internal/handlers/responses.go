package handlers

import (
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/storage"
	"github.com/formdeck/formdeck/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ResponsesHandler handles submission, listing and file download
type ResponsesHandler struct {
	DB    *gorm.DB
	Store *storage.FileStore
}

// ListResponses handles GET /api/forms/:formId/responses/
// @Summary List responses to a form
// @Description List a form's responses, newest first; owner only
// @Tags Responses
// @Produce json
// @Param formId path int true "Form ID"
// @Success 200 {array} services.ResponseOut
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{formId}/responses/ [get]
// @Security SessionAuth
func (h *ResponsesHandler) ListResponses(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "responses.auth")
	}

	formID, err := parseID(c, "formId")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	form, err := services.GetForm(h.DB, formID)
	if err != nil {
		return serviceErrorResponse(c, err, "responses.list")
	}
	if form.OwnerID != user.UserID {
		return utils.ErrorResponse(c, "Not authorized to view responses", fiber.StatusForbidden, "responses.list")
	}

	responses, err := services.ListResponses(h.DB, formID)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "responses.list")
	}

	out := make([]services.ResponseOut, 0, len(responses))
	for i := range responses {
		serialized, err := services.SerializeResponse(&responses[i])
		if err != nil {
			return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "responses.list")
		}
		out = append(out, serialized)
	}
	return utils.SuccessResponse(c, out, fiber.StatusOK)
}

// CreateResponse handles POST /api/forms/:formId/responses/
// @Summary Submit a response
// @Description Submit answers as JSON, or as multipart form-data with file parts keyed by question id
// @Tags Responses
// @Accept json
// @Accept mpfd
// @Produce json
// @Param formId path int true "Form ID"
// @Success 201 {object} services.ResponseOut
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{formId}/responses/ [post]
// @Security SessionAuth
func (h *ResponsesHandler) CreateResponse(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "responses.auth")
	}

	formID, err := parseID(c, "formId")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	form, err := services.GetForm(h.DB, formID)
	if err != nil {
		return serviceErrorResponse(c, err, "responses.create")
	}

	responseData, files, err := parseSubmission(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, "responses.validation")
	}

	response, err := services.CreateResponse(h.DB, h.Store, form, user.UserID, responseData, files)
	if err != nil {
		return serviceErrorResponse(c, err, "responses.create")
	}

	serialized, err := services.SerializeResponse(response)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "responses.create")
	}
	return utils.SuccessResponse(c, serialized, fiber.StatusCreated)
}

// DownloadFile handles GET /api/forms/:formId/responses/:id/download/:questionId/
// @Summary Download an uploaded file
// @Description Stream the file stored for one question of one response; owner only
// @Tags Responses
// @Produce octet-stream
// @Param formId path int true "Form ID"
// @Param id path int true "Response ID"
// @Param questionId path string true "Question ID"
// @Success 200 {file} file
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{formId}/responses/{id}/download/{questionId}/ [get]
// @Security SessionAuth
func (h *ResponsesHandler) DownloadFile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "responses.auth")
	}

	formID, err := parseID(c, "formId")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}
	responseID, err := parseID(c, "id")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}
	questionID := c.Params("questionId")

	form, err := services.GetForm(h.DB, formID)
	if err != nil {
		return serviceErrorResponse(c, err, "responses.download")
	}
	// Owner only: the respondent who uploaded a file cannot re-download it.
	if form.OwnerID != user.UserID {
		return utils.ErrorResponse(c, "Not authorized to download files", fiber.StatusForbidden, "responses.download")
	}

	path, filename, err := services.ResolveDownload(h.DB, h.Store, formID, responseID, questionID)
	if err != nil {
		return serviceErrorResponse(c, err, "responses.download")
	}
	return c.Download(path, filename)
}

// parseSubmission extracts response_data and file parts from either a
// JSON body or a multipart form. File parts are keyed by question id;
// only the first part per key is used.
func parseSubmission(c *fiber.Ctx) (map[string]interface{}, map[string]*multipart.FileHeader, error) {
	contentType := c.Get(fiber.HeaderContentType)

	if strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		mp, err := c.MultipartForm()
		if err != nil {
			return nil, nil, err
		}

		var raw json.RawMessage
		if vals := mp.Value["response_data"]; len(vals) > 0 {
			encoded, _ := json.Marshal(vals[0])
			raw = encoded
		}
		responseData, err := normalizeResponseData(raw)
		if err != nil {
			return nil, nil, err
		}

		files := map[string]*multipart.FileHeader{}
		for key, headers := range mp.File {
			if len(headers) > 0 {
				files[key] = headers[0]
			}
		}
		return responseData, files, nil
	}

	var body struct {
		ResponseData json.RawMessage `json:"response_data"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return nil, nil, err
		}
	}
	responseData, err := normalizeResponseData(body.ResponseData)
	if err != nil {
		return nil, nil, err
	}
	return responseData, nil, nil
}
