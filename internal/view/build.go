package view

import (
	"database/sql"
	"html/template"
	"strings"
	"time"

	"headlines/internal/content"
)

// FeedRow holds the raw columns a feed view is built from.
type FeedRow struct {
	Title           string
	OriginalTitle   string
	URL             string
	Homepage        string
	Description     string
	LastChecked     sql.NullTime
	LastError       sql.NullString
	ID              int64
	IntervalSeconds int64
	ItemCount       int
	UnreadCount     int
	Active          bool
}

// BuildFeedView converts a feed row into display data.
func BuildFeedView(row FeedRow) FeedView {
	refreshDisplay := "Never"
	if row.LastChecked.Valid {
		refreshDisplay = FormatRelativeShort(row.LastChecked.Time, time.Now())
	}

	errText := ""
	if row.LastError.Valid {
		errText = row.LastError.String
	}

	return FeedView{
		ID:                 row.ID,
		Title:              row.Title,
		OriginalTitle:      row.OriginalTitle,
		URL:                row.URL,
		Homepage:           row.Homepage,
		Description:        row.Description,
		ItemCount:          row.ItemCount,
		UnreadCount:        row.UnreadCount,
		LastRefreshDisplay: refreshDisplay,
		LastError:          errText,
		IntervalSeconds:    row.IntervalSeconds,
		IntervalDisplay:    FormatInterval(row.IntervalSeconds),
		Active:             row.Active,
	}
}

// ItemRow holds the raw columns an item view is built from.
type ItemRow struct {
	Title           string
	Link            string
	FeedTitle       string
	Summary         sql.NullString
	Content         sql.NullString
	Published       sql.NullTime
	ReadAt          sql.NullTime
	Rating          sql.NullInt64
	PredictedBoring sql.NullBool
	ID              int64
	FeedID          int64
}

// BuildItemView converts an item row into display data. Items rated at or
// below boringThreshold are flagged boring; unrated items are boring when
// the classifier predicted so.
func BuildItemView(row ItemRow, boringThreshold int) ItemView {
	publishedDisplay := "Unpublished"
	publishedCompact := "na"

	if row.Published.Valid {
		publishedDisplay = FormatTime(row.Published.Time)
		publishedCompact = FormatRelativeShort(row.Published.Time, time.Now())
	}

	rating := 0
	isBoring := row.PredictedBoring.Valid && row.PredictedBoring.Bool

	if row.Rating.Valid {
		rating = int(row.Rating.Int64)
		isBoring = rating <= boringThreshold
	}

	return ItemView{
		ID:               row.ID,
		FeedID:           row.FeedID,
		Title:            row.Title,
		Link:             row.Link,
		FeedTitle:        row.FeedTitle,
		SummaryHTML:      pickSummaryHTML(row.Summary, row.Content, row.Link),
		PublishedDisplay: publishedDisplay,
		PublishedCompact: publishedCompact,
		Tags:             []TagView{},
		Rating:           rating,
		IsRead:           row.ReadAt.Valid,
		IsBoring:         isBoring,
	}
}

func pickSummaryHTML(summary, contentText sql.NullString, baseURL string) template.HTML {
	text := ""
	if contentText.Valid && strings.TrimSpace(contentText.String) != "" {
		text = contentText.String
	} else if summary.Valid && strings.TrimSpace(summary.String) != "" {
		text = summary.String
	}

	if text == "" {
		text = "<p>No summary available.</p>"
	}

	text = content.RewriteSummaryHTML(text, baseURL)

	//nolint:gosec // Summaries are sanitized with bluemonday before they are stored.
	return template.HTML(text)
}
