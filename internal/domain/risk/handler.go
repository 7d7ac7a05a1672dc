package risk

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
	group := api.Group("/risk", auth.RequireRole("admin", "clinician", "nurse"))
	group.POST("/prep", h.AssessPrEP)
	group.GET("/prep/factors", h.PrEPFactors)
	group.POST("/obstetric", h.AssessObstetric)
	group.POST("/labs", h.AssessLabs)
}

type prepRequest struct {
	Factors  map[string]bool `json:"factors"`
	Clinical PrEPClinical    `json:"clinical"`
}

func (h *Handler) AssessPrEP(c echo.Context) error {
	var req prepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.AssessPrEP(req.Factors, req.Clinical))
}

func (h *Handler) PrEPFactors(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"factors": h.svc.PrEPFactorTable(),
	})
}

func (h *Handler) AssessObstetric(c echo.Context) error {
	var history ObstetricHistory
	if err := c.Bind(&history); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if v := ValidateObstetricHistory(history); !v.IsValid {
		return c.JSON(http.StatusUnprocessableEntity, v)
	}

	a, err := h.svc.AssessObstetric(history)
	if err != nil {
		var ve *rules.ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, ve.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type labsRequest struct {
	Labs []LabPanel `json:"labs"`
}

func (h *Handler) AssessLabs(c echo.Context) error {
	var req labsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.AssessLabs(req.Labs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
