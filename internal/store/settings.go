package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"headlines/internal/view"
)

// Setting keys.
const (
	SettingBeacon     = "beacon"
	SettingHideBoring = "hide_boring"
)

// ErrUnknownSetting is returned for a key that is not a known setting.
var ErrUnknownSetting = errors.New("unknown setting")

var settingDefaults = map[string]bool{
	SettingBeacon:     true,
	SettingHideBoring: false,
}

// GetSettings loads all settings, falling back to defaults for unset keys.
func GetSettings(ctx context.Context, db *sql.DB) (view.Settings, error) {
	ctx = contextOrBackground(ctx)

	beacon, err := getBool(ctx, db, SettingBeacon)
	if err != nil {
		return view.Settings{}, err
	}

	hideBoring, err := getBool(ctx, db, SettingHideBoring)
	if err != nil {
		return view.Settings{}, err
	}

	return view.Settings{Beacon: beacon, HideBoring: hideBoring}, nil
}

// SetSetting stores a boolean setting.
func SetSetting(ctx context.Context, db *sql.DB, key string, value bool) error {
	ctx = contextOrBackground(ctx)

	if _, ok := settingDefaults[key]; !ok {
		return fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}

	_, err := db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, strconv.FormatBool(value))
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}

	return nil
}

// ToggleSetting flips a boolean setting and returns its new value.
func ToggleSetting(ctx context.Context, db *sql.DB, key string) (bool, error) {
	ctx = contextOrBackground(ctx)

	if _, ok := settingDefaults[key]; !ok {
		return false, fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}

	current, err := getBool(ctx, db, key)
	if err != nil {
		return false, err
	}

	err = SetSetting(ctx, db, key, !current)
	if err != nil {
		return false, err
	}

	return !current, nil
}

func getBool(ctx context.Context, db *sql.DB, key string) (bool, error) {
	var raw string

	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settingDefaults[key], nil
	}

	if err != nil {
		return false, fmt.Errorf("load setting %s: %w", key, err)
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse setting %s: %w", key, err)
	}

	return value, nil
}
