package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"azureorm/internal/schema"
)

var newsSummaryTable = &schema.Table{
	Name: "news_summaries",
	Columns: []schema.Column{
		{Name: "id", Type: schema.String, Length: 64, PrimaryKey: true, Unique: true},
		{Name: "news_url", Type: schema.String, Length: 1024},
		{Name: "website_base_url", Type: schema.String, Length: 256, Nullable: true},
		{Name: "topic", Type: schema.String, Length: 64, Nullable: true},
		{Name: "title", Type: schema.String, Length: 350},
		{Name: "summary", Type: schema.String, Nullable: true},
		{Name: "relevance", Type: schema.Float32, Nullable: true},
		{Name: "valid", Type: schema.Bool, Default: false},
		{Name: "window_end_date", Type: schema.Timestamp},
		{Name: "publish_date", Type: schema.Timestamp, Nullable: true},
	},
}

// NewsSummary is a summarized news article. Its ID is the SHA-256 of the
// article URL, so the same URL always maps to the same row.
type NewsSummary struct {
	ID             string     `db:"id" json:"id"`
	NewsURL        string     `db:"news_url" json:"news_url"`
	WebsiteBaseURL *string    `db:"website_base_url" json:"website_base_url,omitempty"`
	Topic          *string    `db:"topic" json:"topic,omitempty"`
	Title          string     `db:"title" json:"title"`
	Summary        *string    `db:"summary" json:"summary,omitempty"`
	Relevance      *float32   `db:"relevance" json:"relevance,omitempty"`
	Valid          bool       `db:"valid" json:"valid"`
	WindowEndDate  time.Time  `db:"window_end_date" json:"window_end_date"`
	PublishDate    *time.Time `db:"publish_date" json:"publish_date,omitempty"`
}

func NewNewsSummary(
	newsURL string,
	websiteBaseURL *string,
	topic *string,
	title string,
	summary *string,
	relevance *float32,
	valid bool,
	windowEndDate time.Time,
	publishDate *time.Time,
) *NewsSummary {
	n := &NewsSummary{
		NewsURL:        newsURL,
		WebsiteBaseURL: websiteBaseURL,
		Topic:          topic,
		Title:          title,
		Summary:        summary,
		Relevance:      relevance,
		Valid:          valid,
		WindowEndDate:  windowEndDate,
		PublishDate:    publishDate,
	}
	n.Derive()
	schema.Normalize(n)
	return n
}

func (NewsSummary) Table() *schema.Table { return newsSummaryTable }

// Derive sets the ID from the URL unless it is already set. It must run
// before the URL is cut to the column length.
func (n *NewsSummary) Derive() {
	if n.ID == "" {
		n.ID = HashURL(n.NewsURL)
	}
}

func (NewsSummary) DeriveFields(fields map[string]any) map[string]any {
	if _, ok := fields["id"]; ok {
		return nil
	}
	switch url := fields["news_url"].(type) {
	case string:
		return map[string]any{"id": HashURL(url)}
	case *string:
		if url != nil {
			return map[string]any{"id": HashURL(*url)}
		}
	}
	return nil
}

// HashURL returns the hex-encoded SHA-256 digest of url.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
