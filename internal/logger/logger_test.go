package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake_Level(t *testing.T) {
	testCases := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"", false, true},
		{"debug", true, true},
		{"WARN", false, false},
		{"bogus", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log, closer, err := New().ToWriter(&buf).Level(tc.level).Make()
			require.NoError(t, err)
			defer closer.Close()

			log.Debug().Msg("debug-line")
			log.Info().Msg("info-line")

			assert.Equal(t, tc.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug-line")))
			assert.Equal(t, tc.wantInfo, bytes.Contains(buf.Bytes(), []byte("info-line")))
		})
	}
}

func TestMake_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New().ToWriter(&buf).Make()
	require.NoError(t, err)

	log.Info().Str("room", "p1").Msg("[Room] hello")

	assert.Contains(t, buf.String(), `"room":"p1"`)
	assert.Contains(t, buf.String(), `"message":"[Room] hello"`)
	assert.Contains(t, buf.String(), `"time":`)
}

func TestMake_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	log, closer, err := New().ToFile(path).Make()
	require.NoError(t, err)

	log.Info().Msg("to-file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-file")
}

func TestMake_BadPath(t *testing.T) {
	_, _, err := New().ToFile(filepath.Join(t.TempDir(), "missing", "x.log")).Make()
	assert.Error(t, err)
}
