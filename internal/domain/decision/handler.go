package decision

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maternacare/cds/internal/domain/rules"
	"github.com/maternacare/cds/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dak := api.Group("/dak", auth.RequireRole("admin", "clinician", "nurse"))
	dak.GET("/decision-support/:module", h.ModuleGuidance)
	dak.POST("/evaluate/:module", h.Evaluate)
	dak.GET("/danger-signs", h.DangerSignCatalog)
	dak.POST("/danger-signs/assess", h.AssessDangerSigns)

	admin := api.Group("/admin/dak/cache", auth.RequireRole("admin"))
	admin.GET("/stats", h.CacheStats)
	admin.POST("/warm", h.WarmCache)
	admin.POST("/invalidate", h.InvalidateCache)
}

func (h *Handler) ModuleGuidance(c echo.Context) error {
	support, err := h.svc.ModuleGuidance(c.Request().Context(), c.Param("module"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, support)
}

func (h *Handler) Evaluate(c echo.Context) error {
	var findings map[string]interface{}
	if err := c.Bind(&findings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	evaluation, err := h.svc.EvaluateFindings(c.Request().Context(), c.Param("module"), findings)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, evaluation)
}

func (h *Handler) DangerSignCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"danger_signs": h.svc.DangerSignCatalog(),
	})
}

type dangerSignRequest struct {
	DangerSigns []string `json:"danger_signs"`
}

func (h *Handler) AssessDangerSigns(c echo.Context) error {
	var req dangerSignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.AssessDangerSigns(req.DangerSigns))
}

func (h *Handler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Cache().Stats())
}

type warmRequest struct {
	Modules []string `json:"modules"`
}

// WarmCache populates entries for the requested modules, or every known
// module when the body names none.
func (h *Handler) WarmCache(c echo.Context) error {
	var req warmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Warm(c.Request().Context(), req.Modules...); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":          "cache warmed",
		"cache_statistics": h.svc.Cache().Stats(),
	})
}

type invalidateRequest struct {
	ModuleCode string `json:"module_code"`
}

func (h *Handler) InvalidateCache(c echo.Context) error {
	var req invalidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.InvalidateModule(req.ModuleCode); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":          "cache invalidated",
		"cache_statistics": h.svc.Cache().Stats(),
	})
}

func mapError(err error) error {
	var ve *rules.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	var nf *rules.NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
