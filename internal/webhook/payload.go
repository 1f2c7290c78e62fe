package webhook

import (
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/jensmonne/RSS-webhook/internal/core"
)

// descriptionLimit caps embed descriptions, in runes.
const descriptionLimit = 200

// FeedInfo carries the feed-level fields payloads render. Title is the feed
// document's own title from the latest fetch and may be empty.
type FeedInfo struct {
	Name     string
	URL      string
	Title    string
	Username string
	Color    int
}

// DiscordPayload is the body Discord webhooks expect: one embed per item.
type DiscordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type DiscordFooter struct {
	Text string `json:"text"`
}

// JSONPayload is the format-neutral notification body.
type JSONPayload struct {
	Feed   PayloadFeed `json:"feed"`
	Item   PayloadItem `json:"item"`
	SentAt time.Time   `json:"sent_at"`
}

type PayloadFeed struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type PayloadItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// NewDiscordPayload renders one item as a Discord embed. Descriptions are
// converted from HTML to markdown and truncated to descriptionLimit runes.
// The embed timestamp is the item's publication time and is omitted when the
// feed did not provide one.
func NewDiscordPayload(feed FeedInfo, item core.Item) DiscordPayload {
	title := item.Title
	if title == "" {
		// Discord rejects embeds with no content at all.
		title = "No Title"
	}

	description, err := htmlToMarkdown(item.Description)
	if err != nil {
		description = item.Description
	}
	description = truncate(description, descriptionLimit)

	embed := DiscordEmbed{
		Title:       title,
		URL:         item.Link,
		Description: description,
		Color:       feed.Color,
	}
	if feed.Title != "" {
		embed.Footer = &DiscordFooter{Text: "Source: " + feed.Title}
	}
	if item.HasPublished() {
		embed.Timestamp = item.Published.UTC().Format(time.RFC3339)
	}

	return DiscordPayload{
		Username: feed.Username,
		Embeds:   []DiscordEmbed{embed},
	}
}

// NewJSONPayload renders one item in the generic JSON format.
func NewJSONPayload(feed FeedInfo, item core.Item, sentAt time.Time) JSONPayload {
	payload := JSONPayload{
		Feed: PayloadFeed{
			Name:  feed.Name,
			URL:   feed.URL,
			Title: feed.Title,
		},
		Item: PayloadItem{
			ID:    item.ID,
			Title: item.Title,
			Link:  item.Link,
		},
		SentAt: sentAt.UTC(),
	}
	if item.HasPublished() {
		published := item.Published.UTC()
		payload.Item.PublishedAt = &published
	}
	return payload
}

func htmlToMarkdown(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	// Fast path: if there's no tag-ish content, avoid converting (and potentially escaping) plain text.
	if !strings.Contains(html, "<") {
		return html, nil
	}

	conv := converter.NewConverter(
		converter.WithEscapeMode("smart"),
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	md, err := conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// truncate shortens s to limit runes, appending "..." when it was longer.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
