package fetcher

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventforge/internal/config"
	"eventforge/internal/core"

	"github.com/PuerkitoBio/goquery"
)

// RSS represents an RSS feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents an RSS channel
type Channel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	Items       []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	ID        string     `xml:"id"`
}

const maxFeedBody = 4 << 20 // 4 MiB cap on a single feed body

// fetchSource fetches and parses one feed, returning raw items carrying the
// source's configured provenance fields.
func (f *Fetcher) fetchSource(ctx context.Context, src config.Source) ([]core.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Eventforge Feed Reader/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	items, err := parseFeed(body, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return items, nil
}

// parseFeed attempts to decode the body as RSS first, then Atom.
func parseFeed(body []byte, src config.Source) ([]core.RawItem, error) {
	var rss RSS
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&rss); err == nil && rss.Channel.Title != "" {
		return parseRSS(rss, src), nil
	}

	var atom Atom
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&atom); err == nil && atom.Title != "" {
		return parseAtom(atom, src), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func parseRSS(rss RSS, src config.Source) []core.RawItem {
	var items []core.RawItem
	for _, item := range rss.Channel.Items {
		items = append(items, core.RawItem{
			Title:          strings.TrimSpace(item.Title),
			Summary:        stripHTML(item.Description),
			PublishedAt:    parseRSSDate(item.PubDate),
			SourceURL:      strings.TrimSpace(item.Link),
			SourceName:     src.Name,
			SourceCategory: src.Category,
			SourceWeight:   src.Weight,
		})
	}
	return items
}

func parseAtom(atom Atom, src config.Source) []core.RawItem {
	var items []core.RawItem
	for _, entry := range atom.Entries {
		// Find the main link
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		summary := entry.Summary
		if summary == "" {
			summary = entry.Content
		}

		items = append(items, core.RawItem{
			Title:          strings.TrimSpace(entry.Title),
			Summary:        stripHTML(summary),
			PublishedAt:    parseAtomDate(entry.Published),
			SourceURL:      strings.TrimSpace(link),
			SourceName:     src.Name,
			SourceCategory: src.Category,
			SourceWeight:   src.Weight,
		})
	}
	return items
}

// stripHTML reduces feed summaries (which are frequently HTML fragments) to
// plain text.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}

// parseRSSDate parses common RSS date formats.
func parseRSSDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// parseAtomDate parses Atom (RFC3339) dates, falling back to RSS formats.
func parseAtomDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dateStr)); err == nil {
		return t.UTC()
	}

	return parseRSSDate(dateStr)
}
