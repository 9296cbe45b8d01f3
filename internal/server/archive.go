package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/blogforge/blogforge/internal/archive"
)

type ArchiveHandler struct {
	Archive *archive.Archive
}

func (h *ArchiveHandler) Register(g *echo.Group) {
	g.GET("/search", h.search)
}

func (h *ArchiveHandler) search(c echo.Context) error {
	if h.Archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive not enabled")
	}
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := h.Archive.Search(query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}
