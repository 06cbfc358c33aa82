package server

import (
	"headlines/internal/notify"
	"headlines/internal/view"
)

type pageData struct {
	Feeds         []view.FeedView
	Items         []view.ItemView
	Tags          []view.TagView
	Patterns      []view.PatternView
	Messages      []notify.Row
	Settings      view.Settings
	BeaconSeconds int
}

type messagesData struct {
	Messages []notify.Row
}
