package server

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yuin/goldmark"

	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/workspace"
)

// runTimeout bounds one background generation run.
const runTimeout = 30 * time.Minute

type RunsHandler struct {
	Store    store.Store
	Pipeline runPipeline
	Logger   *log.Logger
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.trigger)
	g.GET("", h.list)
	g.GET("/:id", h.show)
	g.GET("/:id/markdown", h.markdown)
	g.GET("/:id/html", h.html)
}

func (h *RunsHandler) trigger(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	runID, err := h.Pipeline.Prepare(req.Topic, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.StartRun(c.Request().Context(), runID, req.Topic); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	go executeRun(h.Pipeline, h.Store, h.Logger, runID)

	return c.JSON(http.StatusAccepted, IDResponse{ID: runID})
}

func (h *RunsHandler) list(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	runs, err := h.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *RunsHandler) show(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("id")

	var resp RunStatusResponse
	run, err := h.Store.GetRun(ctx, runID)
	switch {
	case err == nil:
		resp.Run = &run
	case errors.Is(err, store.ErrNotFound):
		// server-triggered runs are stored, CLI runs may only have a checkpoint
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	cp, err := h.Pipeline.Checkpoints().Load(runID)
	switch {
	case err == nil:
		resp.Checkpoint = &CheckpointResponse{
			RunID:          cp.RunID,
			Topic:          cp.Topic,
			CurrentStep:    cp.CurrentStep,
			CompletedSteps: cp.CompletedSteps,
			UpdatedAt:      cp.UpdatedAt,
		}
	case errors.Is(err, pipeline.ErrNotFound):
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if resp.Run == nil && resp.Checkpoint == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if reviews, err := h.Store.ListReviews(ctx, runID); err == nil && len(reviews) > 0 {
		resp.Reviews = reviews
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RunsHandler) markdown(c echo.Context) error {
	content, err := h.loadContent(c.Param("id"))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(content))
}

func (h *RunsHandler) html(c echo.Context) error {
	content, err := h.loadContent(c.Param("id"))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *RunsHandler) loadContent(runID string) (string, error) {
	ws := h.Pipeline.Workspace()
	if !ws.HasArtifact(runID, workspace.BlogContentFile) {
		return "", echo.NewHTTPError(http.StatusNotFound, "no content for run")
	}
	content, err := ws.LoadText(runID, workspace.BlogContentFile)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return content, nil
}

// executeRun drives a prepared run to completion and mirrors its lifecycle
// into the store. Bookkeeping uses a fresh context so a timed-out run still
// gets its failure recorded.
func executeRun(p runPipeline, st store.Store, logger *log.Logger, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res, runErr := p.Resume(ctx, runID)

	bctx, bcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bcancel()
	if runErr != nil {
		logger.Printf("WARN: run %s failed: %v", runID, runErr)
		if st != nil {
			if err := st.FinishRun(bctx, runID, store.RunStatusFailed, runErr.Error()); err != nil {
				logger.Printf("WARN: record failure for run %s: %v", runID, err)
			}
		}
		return
	}
	if st == nil {
		return
	}
	if err := st.FinishRun(bctx, runID, store.RunStatusCompleted, ""); err != nil {
		logger.Printf("WARN: record completion for run %s: %v", runID, err)
	}
	review := store.Review{
		RunID:       runID,
		Reliability: res.Report.ReliabilityScore,
		ToneMatch:   res.Report.ToneMatchScore,
		Corrections: len(res.Report.Corrections),
		Notes:       res.Report.ReliabilityNotes,
	}
	if err := st.SaveReview(bctx, review); err != nil {
		logger.Printf("WARN: save review for run %s: %v", runID, err)
	}
}
