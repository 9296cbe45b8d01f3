package crawler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blogforge/blogforge/internal/telemetry"
)

// SourceAll selects every configured source for a crawl pass.
const SourceAll = "all"

// Runner drives a full crawl pass: collect from the selected sources, run
// the filter chain, summarize survivors and hand them to the configured
// sinks. Sinks are optional; a nil sink is skipped.
type Runner struct {
	Blogs      *BlogCrawler
	YouTube    *YouTubeCrawler
	Filters    Filter
	Summarizer Summarizer
	Forwarder  Forwarder
	Archiver   Archiver
	Recorder   Recorder
	Telemetry  *telemetry.Telemetry
	Logger     *log.Logger
}

// Result summarizes one crawl pass.
type Result struct {
	Crawled   int
	Accepted  int
	Rejected  int
	Forwarded int
	Archived  int
	Errors    int
	Items     []Content
}

// Run crawls the selected source ("blog", "youtube" or "all"). Per-item
// failures are logged and counted, never fatal; only context cancellation
// and source-level misconfiguration abort the pass.
func (r *Runner) Run(ctx context.Context, source string) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[CRAWLER] ", log.LstdFlags)
	}

	var result Result
	items, err := r.collect(ctx, source)
	if err != nil {
		return result, err
	}
	result.Crawled = len(items)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if r.Filters != nil {
			ok, reason := r.Filters.Apply(item)
			if !ok {
				logger.Printf("INFO: rejected %s (%s)", item.URL, reason)
				result.Rejected++
				r.countItem(item.SourceType, false)
				continue
			}
		}
		r.countItem(item.SourceType, true)

		enriched, err := r.enrich(ctx, item)
		if err != nil {
			return result, err
		}

		if r.Forwarder != nil {
			if err := r.Forwarder.Forward(ctx, enriched); err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				logger.Printf("WARN: forwarding %s failed: %v", enriched.URL, err)
				result.Errors++
			} else {
				result.Forwarded++
			}
		}
		if r.Archiver != nil {
			if err := r.Archiver.Index(enriched); err != nil {
				logger.Printf("WARN: archiving %s failed: %v", enriched.URL, err)
				result.Errors++
			} else {
				result.Archived++
			}
		}
		if r.Recorder != nil {
			if err := r.Recorder.SaveArticle(ctx, enriched); err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				logger.Printf("WARN: recording %s failed: %v", enriched.URL, err)
				result.Errors++
			}
		}

		result.Accepted++
		result.Items = append(result.Items, enriched)
	}

	logger.Printf("INFO: crawl finished: %d crawled, %d accepted, %d rejected, %d forwarded, %d errors",
		result.Crawled, result.Accepted, result.Rejected, result.Forwarded, result.Errors)
	return result, nil
}

func (r *Runner) collect(ctx context.Context, source string) ([]Content, error) {
	switch source {
	case SourceBlog:
		if r.Blogs == nil {
			return nil, fmt.Errorf("blog crawler not configured")
		}
	case SourceYouTube:
		if r.YouTube == nil {
			return nil, fmt.Errorf("youtube crawler not configured")
		}
	case SourceAll, "":
	default:
		return nil, fmt.Errorf("unknown crawl source %q", source)
	}

	var items []Content
	if (source == SourceBlog || source == SourceAll || source == "") && r.Blogs != nil {
		blogItems, err := r.Blogs.Crawl(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, blogItems...)
	}
	if (source == SourceYouTube || source == SourceAll || source == "") && r.YouTube != nil {
		videoItems, err := r.YouTube.Crawl(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, videoItems...)
	}
	return items, nil
}

// enrich fills Summary, KeyPoints, a generated title for untitled items and
// a category tag. The summarizer's own fallbacks mean errors here are
// context cancellations only.
func (r *Runner) enrich(ctx context.Context, item Content) (Content, error) {
	if r.Summarizer == nil {
		return item, nil
	}

	summary, err := r.Summarizer.Summarize(ctx, item.Body)
	if err != nil {
		return item, err
	}
	item.Summary = summary

	points, err := r.Summarizer.KeyPoints(ctx, item.Body)
	if err != nil {
		return item, err
	}
	item.KeyPoints = points

	if title := strings.TrimSpace(item.Title); title == "" || title == "Untitled" {
		generated, err := r.Summarizer.Title(ctx, item.Body)
		if err != nil {
			return item, err
		}
		item.Title = generated
	}

	category, err := r.Summarizer.Categorize(ctx, item.Body)
	if err != nil {
		return item, err
	}
	if category != "" && !containsFold(item.Tags, category) {
		item.Tags = append(item.Tags, category)
	}
	return item, nil
}

func (r *Runner) countItem(source string, accepted bool) {
	if r.Telemetry != nil {
		r.Telemetry.RecordCrawlItem(source, accepted)
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
