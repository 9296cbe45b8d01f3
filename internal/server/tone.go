package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/blogforge/blogforge/internal/tone"
)

type ToneHandler struct {
	Learner *tone.Learner
	Cache   *tone.Cache
}

func (h *ToneHandler) Register(g *echo.Group) {
	g.POST("/analyze", h.analyze)
}

func (h *ToneHandler) analyze(c echo.Context) error {
	if h.Learner == nil || h.Cache == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "tone analysis not configured")
	}
	var req ToneAnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	profile, err := h.Cache.GetOrCompute(c.Request().Context(), req.Text, h.Learner.Analyze)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profile)
}
