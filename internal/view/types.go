package view

import "html/template"

// FeedView is template and JSON data for one subscribed feed.
type FeedView struct {
	Title              string `json:"title"`
	OriginalTitle      string `json:"original_title"`
	URL                string `json:"url"`
	Homepage           string `json:"homepage,omitempty"`
	Description        string `json:"description,omitempty"`
	LastRefreshDisplay string `json:"last_refresh"`
	LastError          string `json:"last_error,omitempty"`
	IntervalDisplay    string `json:"interval_display"`
	ID                 int64  `json:"id"`
	IntervalSeconds    int64  `json:"interval"`
	ItemCount          int    `json:"item_count"`
	UnreadCount        int    `json:"unread_count"`
	Active             bool   `json:"active"`
}

// ItemView is template and JSON data for one feed item row.
type ItemView struct {
	Title            string        `json:"title"`
	Link             string        `json:"link"`
	FeedTitle        string        `json:"feed_title"`
	SummaryHTML      template.HTML `json:"-"`
	PublishedDisplay string        `json:"published"`
	PublishedCompact string        `json:"published_compact"`
	Tags             []TagView     `json:"tags"`
	ID               int64         `json:"id"`
	FeedID           int64         `json:"feed_id"`
	Rating           int           `json:"rating"`
	IsRead           bool          `json:"is_read"`
	IsBoring         bool          `json:"is_boring"`
}

// TagView is one tag. Depth is the distance from the root of the tag tree
// and is only filled in by tree listings.
type TagView struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parent,omitempty"`
	Depth       int    `json:"depth"`
}

// PatternView is one blacklist pattern.
type PatternView struct {
	Pattern        string `json:"pattern"`
	CreatedDisplay string `json:"created"`
	ID             int64  `json:"id"`
}

// Settings are the process-wide toggles the page can flip.
type Settings struct {
	Beacon     bool `json:"beacon"`
	HideBoring bool `json:"hide_boring"`
}
