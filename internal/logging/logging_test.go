package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer

	slog.New(NewHandler(&buf, slog.LevelInfo, false)).Info("feed refreshed", "feed_id", 7)
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
	assert.Contains(t, buf.String(), `"feed_id":7`)

	buf.Reset()
	slog.New(NewHandler(&buf, slog.LevelInfo, true)).Info("feed refreshed", "feed_id", 7)
	assert.Contains(t, buf.String(), "feed_id=7")

	buf.Reset()
	slog.New(NewHandler(&buf, slog.LevelWarn, true)).Info("hidden")
	assert.Empty(t, buf.String())
}
