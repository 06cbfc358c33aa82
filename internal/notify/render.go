package notify

import "strings"

// RowTimeLayout is the timestamp format used in rendered rows.
const RowTimeLayout = "2006-01-02 15:04:05"

// Row is the view model of one rendered Entry.
type Row struct {
	Time       string `json:"time"`
	Level      string `json:"level"`
	LevelClass string `json:"level_class"`
	Message    string `json:"message"`
}

// Rows maps entries to rows in the same order. An empty input yields an
// empty, non-nil slice so JSON encodes it as [].
func Rows(entries []Entry) []Row {
	rows := make([]Row, 0, len(entries))

	for _, entry := range entries {
		rows = append(rows, Row{
			Time:       entry.Timestamp.Local().Format(RowTimeLayout),
			Level:      entry.Level.String(),
			LevelClass: "msg-" + strings.ToLower(entry.Level.String()),
			Message:    entry.Message,
		})
	}

	return rows
}
