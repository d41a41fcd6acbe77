package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_SilentWithoutInit(t *testing.T) {
	Reset()
	require.NotPanics(t, func() {
		Info(CatCatalog, "nobody listens")
	})
	require.Nil(t, NewListener(context.Background()))
}

func TestLog_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)
	t.Cleanup(Reset)

	Warn(CatEnforcer, "duplicate identifier", "location", "decks/a.yaml", "orphan")

	line := buf.String()
	require.Contains(t, line, "[WARN] [enforcer] duplicate identifier")
	require.Contains(t, line, "location=decks/a.yaml")
	require.Contains(t, line, "orphan=<missing>")
	require.True(t, strings.HasSuffix(line, "\n"))
}

func TestLog_MinLevelAndEnabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelWarn)
	t.Cleanup(Reset)

	Debug(CatRegistry, "hidden")
	Info(CatRegistry, "hidden")
	require.Empty(t, buf.String())

	Error(CatRegistry, "shown")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	SetEnabled(false)
	Error(CatRegistry, "muted")
	require.Empty(t, buf.String())

	SetEnabled(true)
	SetMinLevel(LevelDebug)
	Debug(CatRegistry, "now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestLog_ErrorErr(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)
	t.Cleanup(Reset)

	ErrorErr(CatStore, "load failed", errors.New("boom"), "location", "x.yaml")
	ErrorErr(CatStore, "nil error", nil)

	require.Contains(t, buf.String(), "error=boom")
	require.Contains(t, buf.String(), "error=<nil>")
}

func TestLog_InitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.log")
	cleanup, err := Init(path)
	require.NoError(t, err)
	t.Cleanup(Reset)

	Info(CatConfig, "written to file")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[INFO] [config] written to file")
}

func TestLog_PublishesToListener(t *testing.T) {
	InitWriter(&bytes.Buffer{}, LevelDebug)
	t.Cleanup(Reset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(ctx)
	require.NotNil(t, listener)

	Info(CatWatcher, "batch ready")
	event, ok := listener.Next()
	require.True(t, ok)
	require.Contains(t, event.Payload, "batch ready")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
