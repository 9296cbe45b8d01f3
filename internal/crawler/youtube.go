package crawler

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
)

const (
	defaultDataAPIBase = "https://www.googleapis.com/youtube/v3"
	defaultWatchBase   = "https://www.youtube.com/watch?v="
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/v/([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/shorts/([^&\n?#]+)`),
}

var channelIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/channel/([^/?#]+)`),
	regexp.MustCompile(`youtube\.com/user/([^/?#]+)`),
	regexp.MustCompile(`youtube\.com/(@[^/?#]+)`),
	regexp.MustCompile(`youtube\.com/c/([^/?#]+)`),
}

// ExtractVideoID pulls the video ID out of the common YouTube URL shapes
// (watch?v=, youtu.be/, embed/, v/, shorts/). Returns "" when none match.
func ExtractVideoID(rawURL string) string {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}
	return ""
}

// YouTubeCrawler lists recent uploads of configured channels through the
// Data API v3 and scrapes transcripts from watch pages.
type YouTubeCrawler struct {
	client  *Client
	cfg     config.YouTubeConfig
	apiBase string
	watch   string
	logger  *log.Logger
}

func NewYouTubeCrawler(client *Client, cfg config.YouTubeConfig, logger *log.Logger) *YouTubeCrawler {
	if logger == nil {
		logger = log.New(log.Writer(), "[CRAWLER] ", log.LstdFlags)
	}
	return &YouTubeCrawler{
		client:  client,
		cfg:     cfg,
		apiBase: defaultDataAPIBase,
		watch:   defaultWatchBase,
		logger:  logger,
	}
}

// Crawl visits every configured channel. A failing channel is logged and
// skipped.
func (y *YouTubeCrawler) Crawl(ctx context.Context) ([]Content, error) {
	if y.cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube crawl requires an api key")
	}
	var all []Content
	for _, channel := range y.cfg.Channels {
		items, err := y.CrawlChannel(ctx, channel)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			y.logger.Printf("WARN: youtube crawl failed for %s: %v", channel, err)
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}

// CrawlChannel resolves a channel reference to its uploads playlist, lists
// recent videos, drops those over the length limit and fetches a transcript
// for the rest.
func (y *YouTubeCrawler) CrawlChannel(ctx context.Context, channel string) ([]Content, error) {
	y.logger.Printf("INFO: crawling youtube channel %s", channel)

	playlistID, err := y.uploadsPlaylist(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("resolving channel %s: %w", channel, err)
	}
	videoIDs, err := y.playlistVideoIDs(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("listing uploads for %s: %w", channel, err)
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}
	details, err := y.videoDetails(ctx, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching video details for %s: %w", channel, err)
	}

	var out []Content
	for _, video := range details {
		if y.cfg.MaxVideoLength > 0 && video.duration > y.cfg.MaxVideoLength {
			y.logger.Printf("INFO: skipping %s (%ds exceeds %ds limit)", video.id, video.duration, y.cfg.MaxVideoLength)
			continue
		}
		item := y.toContent(ctx, video)
		out = append(out, item)
	}
	return out, nil
}

// CrawlVideo crawls a single video by URL.
func (y *YouTubeCrawler) CrawlVideo(ctx context.Context, rawURL string) (Content, error) {
	videoID := ExtractVideoID(rawURL)
	if videoID == "" {
		return Content{}, fmt.Errorf("no video id in %s", rawURL)
	}
	details, err := y.videoDetails(ctx, []string{videoID})
	if err != nil {
		return Content{}, err
	}
	if len(details) == 0 {
		return Content{}, fmt.Errorf("video %s not found", videoID)
	}
	return y.toContent(ctx, details[0]), nil
}

func (y *YouTubeCrawler) toContent(ctx context.Context, video videoDetail) Content {
	body, err := y.Transcript(ctx, video.id)
	if err != nil {
		y.logger.Printf("WARN: no transcript for %s: %v", video.id, err)
		body = video.description
	}
	return Content{
		Title:       video.title,
		URL:         y.watch + video.id,
		Author:      video.channelTitle,
		PublishedAt: video.publishedAt,
		Body:        body,
		Tags:        video.tags,
		SourceType:  SourceYouTube,
		Length:      utf8.RuneCountInString(body),
	}
}

// Data API response shapes, trimmed to the fields used.

type channelListResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	Items []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
			Tags         []string  `json:"tags"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videoDetail struct {
	id           string
	title        string
	description  string
	channelTitle string
	publishedAt  time.Time
	tags         []string
	duration     int
}

func (y *YouTubeCrawler) uploadsPlaylist(ctx context.Context, channel string) (string, error) {
	key, value := channelParam(channel)
	endpoint := fmt.Sprintf("%s/channels?part=contentDetails&%s=%s&key=%s",
		y.apiBase, key, url.QueryEscape(value), url.QueryEscape(y.cfg.APIKey))

	body, err := y.client.Get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	var resp channelListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding channel list: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel %s not found", channel)
	}
	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return "", fmt.Errorf("channel %s has no uploads playlist", channel)
	}
	return uploads, nil
}

func (y *YouTubeCrawler) playlistVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/playlistItems?part=contentDetails&playlistId=%s&maxResults=%d&key=%s",
		y.apiBase, url.QueryEscape(playlistID), y.cfg.MaxResults, url.QueryEscape(y.cfg.APIKey))

	body, err := y.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var resp playlistItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding playlist items: %w", err)
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails.VideoID != "" {
			ids = append(ids, item.ContentDetails.VideoID)
		}
	}
	return ids, nil
}

func (y *YouTubeCrawler) videoDetails(ctx context.Context, ids []string) ([]videoDetail, error) {
	endpoint := fmt.Sprintf("%s/videos?part=snippet,contentDetails&id=%s&key=%s",
		y.apiBase, url.QueryEscape(strings.Join(ids, ",")), url.QueryEscape(y.cfg.APIKey))

	body, err := y.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var resp videoListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding video list: %w", err)
	}
	out := make([]videoDetail, 0, len(resp.Items))
	for _, item := range resp.Items {
		duration, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			y.logger.Printf("WARN: unparseable duration %q for %s", item.ContentDetails.Duration, item.ID)
		}
		out = append(out, videoDetail{
			id:           item.ID,
			title:        item.Snippet.Title,
			description:  item.Snippet.Description,
			channelTitle: item.Snippet.ChannelTitle,
			publishedAt:  item.Snippet.PublishedAt,
			tags:         item.Snippet.Tags,
			duration:     duration,
		})
	}
	return out, nil
}

// channelParam maps a channel reference (URL, bare ID, @handle or username)
// to the matching Data API lookup parameter.
func channelParam(channel string) (key, value string) {
	channel = strings.TrimSpace(channel)
	if strings.Contains(channel, "youtube.com") {
		for _, pattern := range channelIDPatterns {
			if m := pattern.FindStringSubmatch(channel); m != nil {
				channel = m[1]
				break
			}
		}
	}
	switch {
	case strings.HasPrefix(channel, "@"):
		return "forHandle", channel
	case strings.HasPrefix(channel, "UC"):
		return "id", channel
	default:
		return "forUsername", channel
	}
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts an ISO 8601 duration like PT1H2M3S to seconds.
func parseISODuration(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("unrecognized duration %q", s)
		}
		total += n * unit
	}
	return total, nil
}

// Transcript scrapes the watch page for caption tracks, picks the preferred
// language and parses the timedtext XML into plain text.
func (y *YouTubeCrawler) Transcript(ctx context.Context, videoID string) (string, error) {
	page, err := y.client.Get(ctx, y.watch+videoID)
	if err != nil {
		return "", fmt.Errorf("fetching watch page: %w", err)
	}

	tracks, err := captionTracks(string(page))
	if err != nil {
		return "", err
	}
	track := pickTrack(tracks, y.cfg.Languages)

	raw, err := y.client.Get(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("fetching caption track: %w", err)
	}
	text, err := parseTimedText(raw)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("caption track %s is empty", track.LanguageCode)
	}
	return text, nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// captionTracks locates the captionTracks array embedded in the watch page's
// player response.
func captionTracks(page string) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	start := strings.Index(page, marker)
	if start == -1 {
		return nil, fmt.Errorf("no caption tracks on watch page")
	}
	span := balancedBracketSpan(page[start+len(marker):])
	if span == "" {
		return nil, fmt.Errorf("malformed caption track list")
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(span), &tracks); err != nil {
		return nil, fmt.Errorf("decoding caption tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no caption tracks on watch page")
	}
	return tracks, nil
}

// balancedBracketSpan returns the first complete [...] span in s, tracking
// string literals so brackets inside quoted URLs do not confuse the count.
func balancedBracketSpan(s string) string {
	start := strings.IndexByte(s, '[')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// pickTrack honors the configured language preference order, preferring
// manually created tracks over auto-generated ones, and falls back to the
// first track.
func pickTrack(tracks []captionTrack, languages []string) captionTrack {
	for _, lang := range languages {
		var generated *captionTrack
		for i, track := range tracks {
			if !strings.EqualFold(track.LanguageCode, lang) {
				continue
			}
			if track.Kind != "asr" {
				return track
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated
		}
	}
	return tracks[0]
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// parseTimedText flattens a timedtext XML document into newline-joined plain
// text. Caption payloads are double-escaped, so entities are unescaped again
// after the XML decode.
func parseTimedText(raw []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decoding timedtext: %w", err)
	}
	var sb strings.Builder
	for _, t := range doc.Texts {
		sb.WriteString(html.UnescapeString(t.Value))
		sb.WriteString("\n")
	}
	return helpers.NormalizeLines(sb.String()), nil
}
