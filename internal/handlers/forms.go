package handlers

import (
	"fmt"

	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FormsHandler handles form CRUD and CSV export
type FormsHandler struct {
	DB *gorm.DB
}

// ListForms handles GET /api/forms/
// @Summary List own forms
// @Description List forms owned by the authenticated user
// @Tags Forms
// @Produce json
// @Success 200 {array} services.FormOut
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /forms/ [get]
// @Security SessionAuth
func (h *FormsHandler) ListForms(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "forms.auth")
	}

	forms, err := services.ListForms(h.DB, user.UserID)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.list")
	}

	out := make([]services.FormOut, 0, len(forms))
	for i := range forms {
		serialized, err := services.SerializeForm(&forms[i])
		if err != nil {
			return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.list")
		}
		out = append(out, serialized)
	}
	return utils.SuccessResponse(c, out, fiber.StatusOK)
}

// CreateForm handles POST /api/forms/
// @Summary Create a form
// @Description Create a form owned by the authenticated user; any client-sent owner is ignored
// @Tags Forms
// @Accept json
// @Produce json
// @Param body body services.CreateFormInput true "Form"
// @Success 201 {object} services.FormOut
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /forms/ [post]
// @Security SessionAuth
func (h *FormsHandler) CreateForm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "forms.auth")
	}

	var input services.CreateFormInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "forms.validation")
	}

	form, err := services.CreateForm(h.DB, user.UserID, input)
	if err != nil {
		return serviceErrorResponse(c, err, "forms.create")
	}

	serialized, err := services.SerializeForm(form)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.create")
	}
	return utils.SuccessResponse(c, serialized, fiber.StatusCreated)
}

// GetForm handles GET /api/forms/:id/
// @Summary Retrieve a form
// @Description Retrieve a form by id; any authenticated user may fetch a form to fill it in
// @Tags Forms
// @Produce json
// @Param id path int true "Form ID"
// @Success 200 {object} services.FormOut
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{id}/ [get]
// @Security SessionAuth
func (h *FormsHandler) GetForm(c *fiber.Ctx) error {
	formID, err := parseID(c, "id")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	form, err := services.GetForm(h.DB, formID)
	if err != nil {
		return serviceErrorResponse(c, err, "forms.get")
	}

	serialized, err := services.SerializeForm(form)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.get")
	}
	return utils.SuccessResponse(c, serialized, fiber.StatusOK)
}

// UpdateForm handles PUT/PATCH /api/forms/:id/
// @Summary Update a form
// @Description Update a form; owner only
// @Tags Forms
// @Accept json
// @Produce json
// @Param id path int true "Form ID"
// @Param body body services.UpdateFormInput true "Fields to update"
// @Success 200 {object} services.FormOut
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{id}/ [put]
// @Security SessionAuth
func (h *FormsHandler) UpdateForm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "forms.auth")
	}

	formID, err := parseID(c, "id")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	var input services.UpdateFormInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "forms.validation")
	}

	form, err := services.UpdateForm(h.DB, formID, user.UserID, input)
	if err != nil {
		return serviceErrorResponse(c, err, "forms.update")
	}

	serialized, err := services.SerializeForm(form)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.update")
	}
	return utils.SuccessResponse(c, serialized, fiber.StatusOK)
}

// DeleteForm handles DELETE /api/forms/:id/
// @Summary Delete a form
// @Description Delete a form and all its responses; owner only
// @Tags Forms
// @Param id path int true "Form ID"
// @Success 204
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{id}/ [delete]
// @Security SessionAuth
func (h *FormsHandler) DeleteForm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "forms.auth")
	}

	formID, err := parseID(c, "id")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	if err := services.DeleteForm(h.DB, formID, user.UserID); err != nil {
		return serviceErrorResponse(c, err, "forms.delete")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ExportCSV handles GET /api/forms/:id/export_csv/
// @Summary Export responses as CSV
// @Description Download all responses to a form as a CSV attachment; owner only
// @Tags Forms
// @Produce text/csv
// @Param id path int true "Form ID"
// @Success 200 {string} string "CSV body"
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /forms/{id}/export_csv/ [get]
// @Security SessionAuth
func (h *FormsHandler) ExportCSV(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, "forms.auth")
	}

	formID, err := parseID(c, "id")
	if err != nil {
		return utils.NotFoundResponse(c, err.Error())
	}

	form, err := services.GetForm(h.DB, formID)
	if err != nil {
		return serviceErrorResponse(c, err, "forms.export")
	}
	if form.OwnerID != user.UserID {
		return utils.ErrorResponse(c, "Not authorized to export responses", fiber.StatusForbidden, "forms.export")
	}

	body, filename, err := services.ExportCSV(h.DB, form)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "forms.export")
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(body)
}
