package madx

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/madxbind/internal/testutil"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		level, format string
		wantDebug     bool
		wantWarn      bool
		wantSubstr    string
	}{
		{level: "debug", format: "text", wantDebug: true, wantWarn: true, wantSubstr: "level=WARN"},
		{level: "info", format: "json", wantWarn: true, wantSubstr: `"level":"WARN"`},
		{level: "error", format: "text"},
		{level: "bogus", format: "text", wantWarn: true, wantSubstr: "level=WARN"},
	}

	for _, tc := range testCases {
		t.Run(tc.level+"/"+tc.format, func(t *testing.T) {
			buf := &testutil.SafeBuffer{}
			logger := newLogger(tc.level, tc.format, buf)
			logger.Debug("debug line")
			logger.Warn("warn line")

			out := buf.String()
			assert.Equal(t, tc.wantDebug, strings.Contains(out, "debug line"))
			assert.Equal(t, tc.wantWarn, strings.Contains(out, "warn line"))
			if tc.wantSubstr != "" {
				assert.Contains(t, out, tc.wantSubstr)
			}
		})
	}
}

func TestBackendLogger(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	session := newLogger("debug", "text", buf)

	quiet := backendLogger(session, false)
	quiet.Info("quiet info")
	quiet.WithGroup("g").With("k", "v").Warn("quiet warn")
	assert.NotContains(t, buf.String(), "quiet info")
	assert.Contains(t, buf.String(), "quiet warn")
	assert.Contains(t, buf.String(), "component=engine")

	verbose := backendLogger(session, true)
	verbose.Debug("verbose debug")
	assert.Contains(t, buf.String(), "verbose debug")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
}
