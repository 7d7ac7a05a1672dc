package rules

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/maternacare/cds/internal/platform/auth"
	"github.com/maternacare/cds/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/dak", auth.RequireRole("admin"))
	admin.POST("/upload-csv", h.UploadCSV)
	admin.GET("/integrity-check", h.IntegrityCheck)
	admin.GET("/compliance-report", h.ComplianceReport)
	admin.GET("/rules", h.ListRules)
	admin.GET("/rules/:id", h.GetRule)
	admin.PATCH("/rules/:id", h.PatchRule)
}

// UploadCSV ingests a DAK rule CSV submitted as a multipart file.
func (h *Handler) UploadCSV(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to open uploaded file")
	}
	defer f.Close()

	result, err := h.svc.ImportCSV(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "import complete",
		"job_id":     result.JobID,
		"statistics": result,
	})
}

func (h *Handler) IntegrityCheck(c echo.Context) error {
	report, err := h.svc.IntegrityCheck(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"total_rules":  report.TotalRules,
		"valid_rules":  report.ValidRules,
		"issues_found": report.IssuesFound,
		"issues":       report.Issues,
	})
}

func (h *Handler) ComplianceReport(c echo.Context) error {
	summary, err := h.svc.ComplianceReport(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListRules(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("activeOnly") == "true"
	module := c.QueryParam("module")

	items, total, err := h.svc.ListRules(c.Request().Context(), module, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": total,
		"rules": pagination.NewResponse(items, total, pg.Limit, pg.Offset),
	})
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) PatchRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var patch RulePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule, err := h.svc.PatchRule(c.Request().Context(), id, &patch)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"rule":    rule,
	})
}

func mapServiceError(err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
