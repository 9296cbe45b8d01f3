// Package notion forwards summarized content into a Notion database through
// the public REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/retry"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
)

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("notion API error (status %d): %s", e.Status, helpers.Truncate(e.Body, 200))
}

// retryableAPIError retries rate limits, server errors and transport
// failures. Other 4xx responses are caller mistakes and fail immediately.
func retryableAPIError(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}

// Client talks to the Notion API for one configured database.
type Client struct {
	token      string
	databaseID string
	baseURL    string
	client     *http.Client
	policy     retry.Policy
	logger     *log.Logger
}

func NewClient(cfg config.NotionConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[NOTION] ", log.LstdFlags)
	}
	policy := retry.Default()
	policy.Retryable = retryableAPIError
	policy.Logger = logger
	return &Client{
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		policy:     policy,
		logger:     logger,
	}
}

// Notion payload shapes, trimmed to what the forwarder sends.

type richText struct {
	Type string   `json:"type,omitempty"`
	Text textBody `json:"text"`
}

type textBody struct {
	Content string `json:"content"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectName struct {
	Name string `json:"name"`
}

type property struct {
	Title       []richText   `json:"title,omitempty"`
	RichText    []richText   `json:"rich_text,omitempty"`
	URL         string       `json:"url,omitempty"`
	Date        *dateValue   `json:"date,omitempty"`
	MultiSelect []selectName `json:"multi_select,omitempty"`
	Select      *selectName  `json:"select,omitempty"`
	Number      *int         `json:"number,omitempty"`
}

type block struct {
	Object    string    `json:"object"`
	Type      string    `json:"type"`
	Paragraph paragraph `json:"paragraph"`
}

type paragraph struct {
	RichText []richText `json:"rich_text"`
}

type createPageRequest struct {
	Parent     parentRef           `json:"parent"`
	Properties map[string]property `json:"properties"`
	Children   []block             `json:"children,omitempty"`
}

type parentRef struct {
	DatabaseID string `json:"database_id"`
}

type pageResponse struct {
	ID string `json:"id"`
}

// Forward satisfies the crawl runner's forwarder contract.
func (c *Client) Forward(ctx context.Context, item crawler.Content) error {
	pageID, err := c.CreatePage(ctx, item)
	if err != nil {
		return err
	}
	c.logger.Printf("INFO: created notion page %s for %s", pageID, item.URL)
	return nil
}

// CreatePage creates a database page for the item: its metadata becomes
// properties, its summary and key points become paragraph blocks.
func (c *Client) CreatePage(ctx context.Context, item crawler.Content) (string, error) {
	payload := createPageRequest{
		Parent:     parentRef{DatabaseID: c.databaseID},
		Properties: c.buildProperties(item),
		Children:   contentBlocks(pageBody(item)),
	}

	var resp pageResponse
	if err := c.call(ctx, http.MethodPost, "/pages", payload, &resp); err != nil {
		return "", fmt.Errorf("creating page for %s: %w", item.URL, err)
	}
	return resp.ID, nil
}

// AppendToPage appends text to an existing page as paragraph blocks.
func (c *Client) AppendToPage(ctx context.Context, pageID, text string) error {
	blocks := contentBlocks(text)
	if len(blocks) == 0 {
		return nil
	}
	payload := struct {
		Children []block `json:"children"`
	}{Children: blocks}

	if err := c.call(ctx, http.MethodPatch, "/blocks/"+pageID+"/children", payload, nil); err != nil {
		return fmt.Errorf("appending to page %s: %w", pageID, err)
	}
	return nil
}

// TestConnection verifies the token against the /users/me endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.call(ctx, http.MethodGet, "/users/me", nil, nil); err != nil {
		return fmt.Errorf("notion connection test: %w", err)
	}
	return nil
}

func (c *Client) buildProperties(item crawler.Content) map[string]property {
	length := item.Length
	properties := map[string]property{
		"Title":          {Title: []richText{{Text: textBody{Content: item.Title}}}},
		"Source Type":    {Select: &selectName{Name: item.SourceType}},
		"Content Length": {Number: &length},
	}
	if item.URL != "" {
		properties["URL"] = property{URL: item.URL}
	}
	if item.Author != "" {
		properties["Author"] = property{RichText: []richText{{Text: textBody{Content: item.Author}}}}
	}
	if !item.PublishedAt.IsZero() {
		properties["Published Date"] = property{Date: &dateValue{Start: item.PublishedAt.Format(time.RFC3339)}}
	}
	if len(item.Tags) > 0 {
		tags := make([]selectName, 0, len(item.Tags))
		for _, tag := range item.Tags {
			tags = append(tags, selectName{Name: tag})
		}
		properties["Tags"] = property{MultiSelect: tags}
	}
	return properties
}

// pageBody composes the page text: the summary followed by a key point
// section, falling back to the raw body when no summary was generated.
func pageBody(item crawler.Content) string {
	body := item.Summary
	if body == "" {
		body = item.Body
	}
	if len(item.KeyPoints) > 0 {
		var sb strings.Builder
		sb.WriteString(body)
		sb.WriteString("\n\n## Key Points\n")
		for _, point := range item.KeyPoints {
			sb.WriteString("- ")
			sb.WriteString(point)
			sb.WriteString("\n")
		}
		body = strings.TrimRight(sb.String(), "\n")
	}
	return body
}

// contentBlocks splits text on blank lines into paragraph blocks.
func contentBlocks(text string) []block {
	var blocks []block
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, block{
			Object: "block",
			Type:   "paragraph",
			Paragraph: paragraph{
				RichText: []richText{{Type: "text", Text: textBody{Content: para}}},
			},
		})
	}
	return blocks
}

// call issues one API request through the retry policy and decodes the
// response into out when given.
func (c *Client) call(ctx context.Context, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal notion request: %w", err)
		}
	}

	data, err := retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Notion-Version", notionVersion)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("notion request: %w", err)
		}
		data, err := helpers.ReadAllAndClose(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read notion response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &apiError{Status: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode notion response: %w", err)
		}
	}
	return nil
}
