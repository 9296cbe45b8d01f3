package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/blogforge/blogforge/internal/crawler"
)

// crawlTimeout bounds one background crawl pass.
const crawlTimeout = 15 * time.Minute

type CrawlHandler struct {
	Runner crawlRunner
	Logger *log.Logger
}

func (h *CrawlHandler) Register(g *echo.Group) {
	g.POST("", h.trigger)
}

func (h *CrawlHandler) trigger(c echo.Context) error {
	if h.Runner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "crawler not configured")
	}
	var req CrawlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	source := req.Source
	if source == "" {
		source = crawler.SourceAll
	}
	switch source {
	case crawler.SourceAll, crawler.SourceBlog, crawler.SourceYouTube:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "source must be blog, youtube or all")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), crawlTimeout)
		defer cancel()
		result, err := h.Runner.Run(ctx, source)
		if err != nil {
			h.Logger.Printf("WARN: crawl (%s) failed: %v", source, err)
			return
		}
		h.Logger.Printf("crawl (%s): %d crawled, %d accepted, %d rejected, %d errors",
			source, result.Crawled, result.Accepted, result.Rejected, result.Errors)
	}()

	return c.JSON(http.StatusAccepted, CrawlAcceptedResponse{Source: source, Status: "started"})
}
