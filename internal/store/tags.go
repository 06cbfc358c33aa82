package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gosimple/slug"

	"headlines/internal/view"
)

// ErrEmptyTagName is returned when a tag name is blank.
var ErrEmptyTagName = errors.New("tag name is required")

// AddTag creates a tag. parentID zero creates a root tag.
func AddTag(ctx context.Context, db *sql.DB, name string, parentID int64, description string) (view.TagView, error) {
	ctx = contextOrBackground(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return view.TagView{}, ErrEmptyTagName
	}

	if parentID > 0 {
		_, err := GetTag(ctx, db, parentID)
		if err != nil {
			return view.TagView{}, fmt.Errorf("parent tag: %w", err)
		}
	}

	tagSlug := slug.Make(name)
	if tagSlug == "" {
		tagSlug = fmt.Sprintf("tag-%x", name)
	}

	var id int64

	err := db.QueryRowContext(ctx, `
INSERT INTO tags (parent, name, slug, description)
VALUES (?, ?, ?, ?)
RETURNING id
`, nullInt64(parentID), name, tagSlug, strings.TrimSpace(description)).Scan(&id)
	if isUniqueViolation(err) {
		return view.TagView{}, fmt.Errorf("tag %q: %w", name, ErrDuplicate)
	}

	if err != nil {
		return view.TagView{}, fmt.Errorf("insert tag: %w", err)
	}

	return view.TagView{
		ID:          id,
		ParentID:    max(parentID, 0),
		Name:        name,
		Slug:        tagSlug,
		Description: strings.TrimSpace(description),
	}, nil
}

// GetTag loads one tag.
func GetTag(ctx context.Context, db *sql.DB, tagID int64) (view.TagView, error) {
	ctx = contextOrBackground(ctx)

	tag, err := scanTag(db.QueryRowContext(ctx, "SELECT id, parent, name, slug, description FROM tags WHERE id = ?", tagID))
	if errors.Is(err, sql.ErrNoRows) {
		return view.TagView{}, fmt.Errorf("tag %d: %w", tagID, ErrNotFound)
	}

	return tag, err
}

// ListTags returns all tags in tree order: every tag is followed by its
// children, siblings sorted by name, with Depth set.
func ListTags(ctx context.Context, db *sql.DB) ([]view.TagView, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, "SELECT id, parent, name, slug, description FROM tags")
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}

	defer closeRows(rows)

	var tags []view.TagView

	for rows.Next() {
		tag, scanErr := scanTag(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		tags = append(tags, tag)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate tag rows: %w", rowsErr)
	}

	return sortTagTree(tags), nil
}

func sortTagTree(tags []view.TagView) []view.TagView {
	known := make(map[int64]bool, len(tags))
	for _, tag := range tags {
		known[tag.ID] = true
	}

	children := make(map[int64][]view.TagView)

	for _, tag := range tags {
		parent := tag.ParentID
		if !known[parent] {
			parent = 0
		}

		children[parent] = append(children[parent], tag)
	}

	for _, siblings := range children {
		slices.SortFunc(siblings, func(a, b view.TagView) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	}

	out := make([]view.TagView, 0, len(tags))
	visited := make(map[int64]bool, len(tags))

	var walk func(parent int64, depth int)

	walk = func(parent int64, depth int) {
		for _, tag := range children[parent] {
			if visited[tag.ID] {
				continue
			}

			visited[tag.ID] = true
			tag.Depth = depth
			out = append(out, tag)
			walk(tag.ID, depth+1)
		}
	}

	walk(0, 0)

	return out
}

// DeleteTag removes a tag, its descendants and their links.
func DeleteTag(ctx context.Context, db *sql.DB, tagID int64) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", tagID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	return expectAffected(res, "tag", tagID)
}

// LinkTag attaches a tag to an item. Attaching twice is not an error.
func LinkTag(ctx context.Context, db *sql.DB, itemID, tagID int64) error {
	ctx = contextOrBackground(ctx)

	var itemExists, tagExists bool

	err := db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM items WHERE id = ?), EXISTS (SELECT 1 FROM tags WHERE id = ?)
`, itemID, tagID).Scan(&itemExists, &tagExists)
	if err != nil {
		return fmt.Errorf("check tag link targets: %w", err)
	}

	if !itemExists {
		return fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	if !tagExists {
		return fmt.Errorf("tag %d: %w", tagID, ErrNotFound)
	}

	_, err = db.ExecContext(ctx, "INSERT OR IGNORE INTO tag_links (tag_id, item_id) VALUES (?, ?)", tagID, itemID)
	if err != nil {
		return fmt.Errorf("insert tag link: %w", err)
	}

	return nil
}

// UnlinkTag detaches a tag from an item.
func UnlinkTag(ctx context.Context, db *sql.DB, itemID, tagID int64) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "DELETE FROM tag_links WHERE tag_id = ? AND item_id = ?", tagID, itemID)
	if err != nil {
		return fmt.Errorf("delete tag link: %w", err)
	}

	return expectAffected(res, "tag link on item", itemID)
}

// TagsForItem lists the tags attached to an item, by name.
func TagsForItem(ctx context.Context, db *sql.DB, itemID int64) ([]view.TagView, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, `
SELECT t.id, t.parent, t.name, t.slug, t.description
FROM tags t
JOIN tag_links l ON l.tag_id = t.id
WHERE l.item_id = ?
ORDER BY t.name COLLATE NOCASE
`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query item tags: %w", err)
	}

	defer closeRows(rows)

	tags := make([]view.TagView, 0)

	for rows.Next() {
		tag, scanErr := scanTag(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		tags = append(tags, tag)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate item tag rows: %w", rowsErr)
	}

	return tags, nil
}

func attachTags(ctx context.Context, db *sql.DB, items []view.ItemView) error {
	if len(items) == 0 {
		return nil
	}

	index := make(map[int64]int, len(items))
	for idx, item := range items {
		index[item.ID] = idx
	}

	rows, err := db.QueryContext(ctx, `
SELECT l.item_id, t.id, t.parent, t.name, t.slug, t.description
FROM tag_links l
JOIN tags t ON t.id = l.tag_id
ORDER BY t.name COLLATE NOCASE
`)
	if err != nil {
		return fmt.Errorf("query tag links: %w", err)
	}

	defer closeRows(rows)

	for rows.Next() {
		var (
			itemID int64
			parent sql.NullInt64
			tag    view.TagView
		)

		scanErr := rows.Scan(&itemID, &tag.ID, &parent, &tag.Name, &tag.Slug, &tag.Description)
		if scanErr != nil {
			return fmt.Errorf("scan tag link: %w", scanErr)
		}

		idx, ok := index[itemID]
		if !ok {
			continue
		}

		tag.ParentID = parent.Int64
		items[idx].Tags = append(items[idx].Tags, tag)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return fmt.Errorf("iterate tag links: %w", rowsErr)
	}

	return nil
}

func scanTag(row rowScanner) (view.TagView, error) {
	var (
		tag    view.TagView
		parent sql.NullInt64
	)

	err := row.Scan(&tag.ID, &parent, &tag.Name, &tag.Slug, &tag.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return view.TagView{}, err
		}

		return view.TagView{}, fmt.Errorf("scan tag row: %w", err)
	}

	tag.ParentID = parent.Int64

	return tag, nil
}
