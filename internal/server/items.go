package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"headlines/internal/store"
	"headlines/internal/view"
)

func (a *App) handleListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	feedID, err := optionalInt64(r, "feed_id")
	if err != nil {
		a.fail(w, r, "list items", err)

		return
	}

	limit, err := optionalInt64(r, "limit")
	if err != nil {
		a.fail(w, r, "list items", err)

		return
	}

	if limit == 0 {
		limit = defaultItemLimit
	}

	settings, err := store.GetSettings(ctx, a.db)
	if err != nil {
		a.fail(w, r, "list items", err)

		return
	}

	items, err := store.ListItems(ctx, a.db, store.ItemQuery{
		FeedID:          feedID,
		Limit:           int(limit),
		BoringThreshold: a.opts.BoringThreshold,
		HideBoring:      settings.HideBoring,
	})
	if err != nil {
		a.fail(w, r, "list items", err)

		return
	}

	a.ok(w, "", map[string]any{"items": items})
}

func (a *App) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")
	if err != nil {
		a.fail(w, r, "load item", err)

		return
	}

	item, err := store.GetItem(r.Context(), a.db, itemID, a.opts.BoringThreshold)
	if err != nil {
		a.fail(w, r, "load item", err)

		return
	}

	a.ok(w, "", map[string]any{"item": item, "summary_html": string(item.SummaryHTML)})
}

func (a *App) handleRateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")
	if err == nil {
		err = parseForm(w, r)
	}

	var raw string
	if err == nil {
		raw, err = requiredValue(r, "rating")
	}

	rating := 0
	if err == nil {
		rating, err = strconv.Atoi(raw)
		if err != nil {
			err = fmt.Errorf("%w: %q", store.ErrInvalidRating, raw)
		}
	}

	if err == nil {
		err = store.RateItem(r.Context(), a.db, itemID, rating)
	}

	if err != nil {
		a.fail(w, r, "rate item", err)

		return
	}

	a.retrainClassifier(r.Context())

	a.ok(w, "", map[string]any{"item_id": itemID, "rating": rating})
}

func (a *App) handleUnrateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")
	if err == nil {
		err = store.UnrateItem(r.Context(), a.db, itemID)
	}

	if err != nil {
		a.fail(w, r, "unrate item", err)

		return
	}

	a.retrainClassifier(r.Context())

	a.ok(w, "", map[string]any{"item_id": itemID, "rating": 0})
}

func (a *App) handleToggleRead(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")
	if err == nil {
		err = store.ToggleRead(r.Context(), a.db, itemID)
	}

	var item view.ItemView
	if err == nil {
		item, err = store.GetItem(r.Context(), a.db, itemID, a.opts.BoringThreshold)
	}

	if err != nil {
		a.fail(w, r, "toggle read", err)

		return
	}

	a.ok(w, "", map[string]any{"item_id": itemID, "is_read": item.IsRead})
}

func (a *App) handleLinkTag(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")
	if err == nil {
		err = parseForm(w, r)
	}

	var tagID int64
	if err == nil {
		tagID, err = optionalInt64(r, "tag_id")
		if err == nil && tagID == 0 {
			err = fmt.Errorf("%w: tag_id", errMissingField)
		}
	}

	if err == nil {
		err = store.LinkTag(r.Context(), a.db, itemID, tagID)
	}

	if err != nil {
		a.fail(w, r, "tag item", err)

		return
	}

	a.writeItemTags(w, r, itemID)
}

func (a *App) handleUnlinkTag(w http.ResponseWriter, r *http.Request) {
	itemID, err := parsePathInt64(r, "itemID")

	var tagID int64
	if err == nil {
		tagID, err = parsePathInt64(r, "tagID")
	}

	if err == nil {
		err = store.UnlinkTag(r.Context(), a.db, itemID, tagID)
	}

	if err != nil {
		a.fail(w, r, "untag item", err)

		return
	}

	a.writeItemTags(w, r, itemID)
}

func (a *App) writeItemTags(w http.ResponseWriter, r *http.Request, itemID int64) {
	tags, err := store.TagsForItem(r.Context(), a.db, itemID)
	if err != nil {
		a.fail(w, r, "load item tags", err)

		return
	}

	a.ok(w, "", map[string]any{"item_id": itemID, "tags": tags})
}

func (a *App) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := store.ListTags(r.Context(), a.db)
	if err != nil {
		a.fail(w, r, "list tags", err)

		return
	}

	if tags == nil {
		tags = []view.TagView{}
	}

	a.ok(w, "", map[string]any{"tags": tags})
}

func (a *App) handleAddTag(w http.ResponseWriter, r *http.Request) {
	err := parseForm(w, r)

	var name string
	if err == nil {
		name, err = requiredValue(r, "name")
	}

	var parentID int64
	if err == nil {
		parentID, err = optionalInt64(r, "parent")
	}

	var tag view.TagView
	if err == nil {
		tag, err = store.AddTag(r.Context(), a.db, name, parentID, strings.TrimSpace(r.FormValue("description")))
	}

	if err != nil {
		a.fail(w, r, "add tag", err)

		return
	}

	a.ok(w, "", map[string]any{"tag": tag})
}

func (a *App) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	tagID, err := parsePathInt64(r, "tagID")
	if err == nil {
		err = store.DeleteTag(r.Context(), a.db, tagID)
	}

	if err != nil {
		a.fail(w, r, "delete tag", err)

		return
	}

	a.ok(w, "", map[string]any{"tag_id": tagID})
}
