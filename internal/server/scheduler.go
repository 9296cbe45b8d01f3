package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/store"
)

// Scheduler fires the configured recurring jobs. A Redis SetNX lock keeps
// replicas from firing the same schedule twice within a window.
type Scheduler struct {
	Schedules []config.Schedule
	Pipeline  runPipeline
	Crawler   crawlRunner
	Store     store.Store
	Rdb       *redis.Client
	Logger    *log.Logger
	Stop      chan struct{}

	// Interval overrides the tick cadence; zero means one minute.
	Interval time.Duration

	mu      sync.Mutex
	lastRun map[int]time.Time
}

func (s *Scheduler) Start() {
	interval := s.Interval
	if interval == 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now()
	for i, job := range s.Schedules {
		s.mu.Lock()
		if s.lastRun == nil {
			s.lastRun = make(map[int]time.Time)
		}
		last, seen := s.lastRun[i]
		s.mu.Unlock()

		var lastPtr *time.Time
		if seen {
			lastPtr = &last
		}
		if !isDue(job.Spec, lastPtr) {
			continue
		}

		if s.Rdb != nil {
			lockKey := fmt.Sprintf("sched:lock:%s:%d", job.Kind, i)
			ok, err := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if err != nil {
				s.Logger.Printf("WARN: scheduler lock %s: %v", lockKey, err)
				continue
			}
			if !ok {
				continue
			}
		}

		s.mu.Lock()
		s.lastRun[i] = now
		s.mu.Unlock()

		go s.fire(job)
	}
}

func (s *Scheduler) fire(job config.Schedule) {
	// jitter to avoid stampedes
	time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)

	switch job.Kind {
	case "crawl":
		if s.Crawler == nil {
			s.Logger.Printf("WARN: crawl schedule fired but crawler not configured")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), crawlTimeout)
		defer cancel()
		result, err := s.Crawler.Run(ctx, crawler.SourceAll)
		if err != nil {
			s.Logger.Printf("WARN: scheduled crawl failed: %v", err)
			return
		}
		s.Logger.Printf("scheduled crawl: %d crawled, %d accepted, %d errors", result.Crawled, result.Accepted, result.Errors)
	case "generate":
		if job.Topic == "" {
			s.Logger.Printf("WARN: generate schedule has no topic")
			return
		}
		runID, err := s.Pipeline.Prepare(job.Topic, "")
		if err != nil {
			s.Logger.Printf("WARN: prepare scheduled run: %v", err)
			return
		}
		if s.Store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Store.StartRun(ctx, runID, job.Topic); err != nil {
				s.Logger.Printf("WARN: record scheduled run %s: %v", runID, err)
			}
			cancel()
		}
		s.Logger.Printf("scheduled run %s for topic %q", runID, job.Topic)
		executeRun(s.Pipeline, s.Store, s.Logger, runID)
	default:
		s.Logger.Printf("WARN: unknown schedule kind %q", job.Kind)
	}
}

// isDue determines whether a schedule should fire now given its last firing.
// Supports "@daily", "@hourly" and standard 5-field cron expressions; an
// invalid expression degrades to @daily.
func isDue(spec string, last *time.Time) bool {
	now := time.Now()
	switch spec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(spec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
