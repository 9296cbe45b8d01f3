package crawler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/helpers"
)

// feedPaths are probed in order against each blog root. The first path that
// parses as a feed with entries wins.
var feedPaths = []string{"/feed", "/rss", "/atom", "/feed.xml", "/rss.xml", "/atom.xml"}

// articlePathHints mark index-page links that look like posts when a blog
// exposes no feed.
var articlePathHints = []string{"/post", "/article", "/blog", "/entry"}

// BlogCrawler pulls recent posts from configured blog roots, feed-first with
// an index-page fallback.
type BlogCrawler struct {
	client *Client
	parser *gofeed.Parser
	cfg    config.CrawlerConfig
	logger *log.Logger
}

func NewBlogCrawler(client *Client, cfg config.CrawlerConfig, logger *log.Logger) *BlogCrawler {
	if logger == nil {
		logger = log.New(log.Writer(), "[CRAWLER] ", log.LstdFlags)
	}
	return &BlogCrawler{
		client: client,
		parser: gofeed.NewParser(),
		cfg:    cfg,
		logger: logger,
	}
}

// Crawl visits every configured blog root. A failing root is logged and
// skipped so one broken site never sinks the whole crawl.
func (b *BlogCrawler) Crawl(ctx context.Context) ([]Content, error) {
	var all []Content
	for _, root := range b.cfg.Blogs {
		items, err := b.CrawlSite(ctx, root)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			b.logger.Printf("WARN: blog crawl failed for %s: %v", root, err)
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}

// CrawlSite crawls a single blog root.
func (b *BlogCrawler) CrawlSite(ctx context.Context, root string) ([]Content, error) {
	b.logger.Printf("INFO: crawling blog %s", root)

	if feed := b.discoverFeed(ctx, root); feed != nil {
		return b.fromFeed(feed), nil
	}
	return b.fromIndex(ctx, root)
}

// discoverFeed probes the well-known feed paths under root and returns the
// first feed that parses and has entries.
func (b *BlogCrawler) discoverFeed(ctx context.Context, root string) *gofeed.Feed {
	for _, path := range feedPaths {
		feedURL := helpers.AbsoluteURL(root, path)
		if feedURL == "" {
			continue
		}
		body, err := b.client.Get(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		feed, err := b.parser.ParseString(string(body))
		if err != nil || len(feed.Items) == 0 {
			continue
		}
		b.logger.Printf("INFO: found feed %s (%d entries)", feedURL, len(feed.Items))
		return feed
	}
	return nil
}

func (b *BlogCrawler) fromFeed(feed *gofeed.Feed) []Content {
	items := feed.Items
	if len(items) > b.cfg.MaxEntries {
		items = items[:b.cfg.MaxEntries]
	}

	var out []Content
	for _, entry := range items {
		title := strings.TrimSpace(entry.Title)
		raw := entry.Content
		if raw == "" {
			raw = entry.Description
		}
		body := fetch.PlainText(raw)
		if title == "" || body == "" {
			continue
		}

		item := Content{
			Title:      title,
			URL:        entry.Link,
			Body:       body,
			Tags:       entry.Categories,
			SourceType: SourceBlog,
			Length:     utf8.RuneCountInString(body),
		}
		if entry.Author != nil && entry.Author.Name != "" {
			item.Author = entry.Author.Name
		} else if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			item.Author = entry.Authors[0].Name
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = *entry.UpdatedParsed
		}
		out = append(out, item)
	}
	return out
}

// fromIndex is the feedless fallback: scrape the index page for post links
// and extract each linked article.
func (b *BlogCrawler) fromIndex(ctx context.Context, root string) ([]Content, error) {
	page, err := b.client.Get(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("fetching index %s: %w", root, err)
	}

	links := articleLinks(string(page), root, b.cfg.MaxLinks)
	if len(links) == 0 {
		b.logger.Printf("WARN: no feed and no article links found at %s", root)
		return nil, nil
	}

	var out []Content
	for _, link := range links {
		item, err := b.crawlArticle(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			b.logger.Printf("WARN: skipping article %s: %v", link, err)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (b *BlogCrawler) crawlArticle(ctx context.Context, link string) (Content, error) {
	body, err := b.client.Get(ctx, link)
	if err != nil {
		return Content{}, err
	}
	title, text := fetch.Readable(string(body), link)
	if title == "" || text == "" {
		return Content{}, fmt.Errorf("no readable content at %s", link)
	}
	return Content{
		Title:      title,
		URL:        link,
		Body:       text,
		SourceType: SourceBlog,
		Length:     utf8.RuneCountInString(text),
	}, nil
}

// articleLinks collects up to max same-host links whose path looks like a
// post. Order follows document order, duplicates dropped.
func articleLinks(rawHTML, base string, max int) []string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(links) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved := helpers.AbsoluteURL(base, attr.Val)
				if resolved == "" || seen[resolved] || !helpers.SameHost(base, resolved) {
					continue
				}
				if !looksLikeArticle(resolved) {
					continue
				}
				seen[resolved] = true
				links = append(links, resolved)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func looksLikeArticle(link string) bool {
	lowered := strings.ToLower(link)
	for _, hint := range articlePathHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}
