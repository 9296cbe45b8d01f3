package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the blogforge system. It is constructed
// once by Load and passed explicitly to every component constructor; there is
// no package-level instance.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Tone       ToneConfig       `mapstructure:"tone"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Notion     NotionConfig     `mapstructure:"notion"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Store      StoreConfig      `mapstructure:"store"`
	Server     ServerConfig     `mapstructure:"server"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// WorkspaceConfig locates the on-disk run workspace (artifacts + checkpoints).
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir"`
}

func (w WorkspaceConfig) Normalize() WorkspaceConfig {
	if strings.TrimSpace(w.Dir) == "" {
		w.Dir = "workspace"
	}
	return w
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, gemini
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each pipeline operation
type LLMRoutingConfig struct {
	Search    string `mapstructure:"search"`
	Analysis  string `mapstructure:"analysis"`
	Outline   string `mapstructure:"outline"`
	Writing   string `mapstructure:"writing"`
	Review    string `mapstructure:"review"`
	Summarize string `mapstructure:"summarize"`
	Fallback  string `mapstructure:"fallback"`
}

// Model resolves the routed model for an operation, falling back to the
// configured fallback model when the slot is empty.
func (r LLMRoutingConfig) Model(operation string) string {
	var m string
	switch operation {
	case "search":
		m = r.Search
	case "analysis":
		m = r.Analysis
	case "outline":
		m = r.Outline
	case "writing":
		m = r.Writing
	case "review":
		m = r.Review
	case "summarize":
		m = r.Summarize
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// SearchConfig selects the web search backend for the search step.
type SearchConfig struct {
	Provider   string `mapstructure:"provider"` // serper or llm
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

func (s SearchConfig) Normalize() SearchConfig {
	if s.Provider == "" {
		s.Provider = "llm"
	}
	if s.MaxResults <= 0 {
		s.MaxResults = 10
	}
	return s
}

// FetcherConfig bounds the concurrent article fetcher.
type FetcherConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinContentLength int           `mapstructure:"min_content_length"`
	Mode             string        `mapstructure:"mode"` // http or browser
	UserAgent        string        `mapstructure:"user_agent"`
}

func (f FetcherConfig) Normalize() FetcherConfig {
	if f.Concurrency <= 0 {
		f.Concurrency = 5
	}
	if f.Timeout <= 0 {
		f.Timeout = 10 * time.Second
	}
	if f.MinContentLength <= 0 {
		f.MinContentLength = 500
	}
	if f.Mode == "" {
		f.Mode = "http"
	}
	return f
}

func (f FetcherConfig) Validate() error {
	if f.Mode != "" && f.Mode != "http" && f.Mode != "browser" {
		return fmt.Errorf("fetcher.mode must be http or browser, got %q", f.Mode)
	}
	return nil
}

// PipelineConfig shapes the generation pipeline.
type PipelineConfig struct {
	MaxArticles       int `mapstructure:"max_articles"`
	TargetBlogLength  int `mapstructure:"target_blog_length"`
	MinSections       int `mapstructure:"min_sections"`
	MaxSections       int `mapstructure:"max_sections"`
	SectionWordTarget int `mapstructure:"section_word_target"`
	MaxRetries        int `mapstructure:"max_retries"`
}

func (p PipelineConfig) Normalize() PipelineConfig {
	if p.MaxArticles <= 0 {
		p.MaxArticles = 3
	}
	if p.TargetBlogLength <= 0 {
		p.TargetBlogLength = 1500
	}
	if p.MinSections <= 0 {
		p.MinSections = 3
	}
	if p.MaxSections < p.MinSections {
		p.MaxSections = 7
	}
	if p.SectionWordTarget <= 0 {
		p.SectionWordTarget = 300
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	return p
}

// ToneConfig locates the tone-profile cache and sets the match threshold.
type ToneConfig struct {
	CacheDir       string  `mapstructure:"cache_dir"`
	MatchThreshold float64 `mapstructure:"match_threshold"`
}

func (t ToneConfig) Normalize() ToneConfig {
	if strings.TrimSpace(t.CacheDir) == "" {
		t.CacheDir = filepath.Join(".cache", "tone_profiles")
	}
	if t.MatchThreshold <= 0 || t.MatchThreshold > 1 {
		t.MatchThreshold = 0.75
	}
	return t
}

// CrawlerConfig drives the dev-blog and YouTube crawlers.
type CrawlerConfig struct {
	Blogs        []string      `mapstructure:"blogs"`
	YouTube      YouTubeConfig `mapstructure:"youtube"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxEntries   int           `mapstructure:"max_entries"`
	MaxLinks     int           `mapstructure:"max_links"`
	UserAgent    string        `mapstructure:"user_agent"`
	Filters      FilterConfig  `mapstructure:"filters"`
}

func (c CrawlerConfig) Normalize() CrawlerConfig {
	if c.RequestDelay <= 0 {
		c.RequestDelay = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = 5
	}
	c.YouTube = c.YouTube.Normalize()
	return c
}

// YouTubeConfig configures the YouTube Data API crawler.
type YouTubeConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	Channels       []string `mapstructure:"channels"`
	MaxResults     int      `mapstructure:"max_results"`
	MaxVideoLength int      `mapstructure:"max_video_length"` // seconds
	Languages      []string `mapstructure:"languages"`        // transcript language preference order
}

func (y YouTubeConfig) Normalize() YouTubeConfig {
	if y.MaxResults <= 0 {
		y.MaxResults = 10
	}
	if y.MaxVideoLength <= 0 {
		y.MaxVideoLength = 3600
	}
	if len(y.Languages) == 0 {
		y.Languages = []string{"en"}
	}
	return y
}

// FilterConfig declares the content filter chain applied to crawled items.
type FilterConfig struct {
	Keywords    KeywordFilterConfig  `mapstructure:"keywords"`
	Categories  CategoryFilterConfig `mapstructure:"categories"`
	Length      LengthFilterConfig   `mapstructure:"length"`
	Quality     QualityFilterConfig  `mapstructure:"quality"`
	BackendOnly bool                 `mapstructure:"backend_only"`
}

type KeywordFilterConfig struct {
	Required      []string `mapstructure:"required"`
	Excluded      []string `mapstructure:"excluded"`
	MatchAll      bool     `mapstructure:"match_all"`
	CaseSensitive bool     `mapstructure:"case_sensitive"`
}

type CategoryFilterConfig struct {
	Allowed     []string            `mapstructure:"allowed"`
	Excluded    []string            `mapstructure:"excluded"`
	Definitions map[string][]string `mapstructure:"definitions"` // category -> keyword set
}

type LengthFilterConfig struct {
	MinContent int `mapstructure:"min_content"`
	MaxContent int `mapstructure:"max_content"`
	MinTitle   int `mapstructure:"min_title"`
	MaxTitle   int `mapstructure:"max_title"`
}

type QualityFilterConfig struct {
	MinWords          int `mapstructure:"min_words"`
	MinSentences      int `mapstructure:"min_sentences"`
	MinSentenceLength int `mapstructure:"min_sentence_length"`
	MinParagraphs     int `mapstructure:"min_paragraphs"`
}

// SummarizerConfig shapes crawler-side summaries.
type SummarizerConfig struct {
	MaxSentences int      `mapstructure:"max_sentences"`
	Language     string   `mapstructure:"language"`
	Categories   []string `mapstructure:"categories"`
}

func (s SummarizerConfig) Normalize() SummarizerConfig {
	if s.MaxSentences <= 0 {
		s.MaxSentences = 3
	}
	if s.Language == "" {
		s.Language = "en"
	}
	if len(s.Categories) == 0 {
		s.Categories = []string{"backend", "frontend", "devops", "database", "ai", "general"}
	}
	return s
}

// NotionConfig configures the workspace forwarder.
type NotionConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
	PageID     string `mapstructure:"page_id"`
}

func (n NotionConfig) Validate() error {
	if !n.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Token) == "" {
		return fmt.Errorf("notion.token is required when notion is enabled")
	}
	if n.DatabaseID == "" && n.PageID == "" {
		return fmt.Errorf("notion.database_id or notion.page_id is required when notion is enabled")
	}
	return nil
}

// ArchiveConfig controls the local full-text index of crawled content.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func (a ArchiveConfig) Normalize() ArchiveConfig {
	if strings.TrimSpace(a.Path) == "" {
		a.Path = filepath.Join("workspace", "archive.bleve")
	}
	return a
}

// StoreConfig selects the run-history backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres, sqlite or empty (disabled)
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

func (s StoreConfig) Validate() error {
	switch s.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("store.driver must be postgres, sqlite or empty, got %q", s.Driver)
	}
	if s.Driver == "postgres" && s.Postgres.URL == "" && s.Postgres.DBName == "" {
		return fmt.Errorf("store.postgres.url or store.postgres.dbname is required")
	}
	return nil
}

// ServerConfig contains HTTP server, auth and scheduler settings
type ServerConfig struct {
	Address   string      `mapstructure:"address"`
	JWTSecret string      `mapstructure:"jwt_secret"`
	Redis     RedisConfig `mapstructure:"redis"`
	Schedules []Schedule  `mapstructure:"schedules"`
}

// Schedule fires a recurring job. Kind is "crawl" or "generate"; Spec accepts
// @hourly, @daily or a standard cron expression.
type Schedule struct {
	Kind  string `mapstructure:"kind"`
	Spec  string `mapstructure:"spec"`
	Topic string `mapstructure:"topic"` // generate only
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// TelemetryConfig contains telemetry and cost tracking settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// Load reads configuration from the given file (or the default search paths
// when path is empty), applies BLOGFORGE_* environment overrides, fills
// defaults and validates. The returned value is the only configuration
// instance; callers hand it to constructors directly.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "60s")
	v.SetDefault("workspace.dir", "workspace")
	v.SetDefault("search.provider", "llm")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("fetcher.concurrency", 5)
	v.SetDefault("fetcher.timeout", "10s")
	v.SetDefault("fetcher.min_content_length", 500)
	v.SetDefault("fetcher.mode", "http")
	v.SetDefault("pipeline.max_articles", 3)
	v.SetDefault("pipeline.target_blog_length", 1500)
	v.SetDefault("pipeline.min_sections", 3)
	v.SetDefault("pipeline.max_sections", 7)
	v.SetDefault("pipeline.section_word_target", 300)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("tone.match_threshold", 0.75)
	v.SetDefault("crawler.request_delay", "1s")
	v.SetDefault("crawler.timeout", "30s")
	v.SetDefault("crawler.max_entries", 10)
	v.SetDefault("crawler.max_links", 5)
	v.SetDefault("crawler.youtube.max_video_length", 3600)
	v.SetDefault("summarizer.max_sentences", 3)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("BLOGFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// running on defaults + env is fine unless a file was named explicitly
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Workspace = cfg.Workspace.Normalize()
	cfg.Search = cfg.Search.Normalize()
	cfg.Fetcher = cfg.Fetcher.Normalize()
	cfg.Pipeline = cfg.Pipeline.Normalize()
	cfg.Tone = cfg.Tone.Normalize()
	cfg.Crawler = cfg.Crawler.Normalize()
	cfg.Summarizer = cfg.Summarizer.Normalize()
	cfg.Archive = cfg.Archive.Normalize()

	if err := cfg.Fetcher.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Notion.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
