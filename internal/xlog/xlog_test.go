package xlog

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTagsDeviceOnEveryLine(t *testing.T) {
	var buf bytes.Buffer
	var l = New(&buf, "hw:0")
	l.Info("started")
	require.Contains(t, buf.String(), "device=hw:0")
	require.Contains(t, buf.String(), "started")
}

func TestWithCycleAddsFields(t *testing.T) {
	var buf bytes.Buffer
	var l = New(&buf, "hw:0")
	l.WithCycle(42, 64).Warn("xrun detected")
	var out = buf.String()
	require.True(t, strings.Contains(out, "cycle=42"))
	require.True(t, strings.Contains(out, "frames=64"))
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	var l = New(&buf, "hw:0")
	l.SetLevel("info")
	l.Debug("should not appear")
	require.Empty(t, buf.String())
}

func TestFormatElapsedUsesStrftimeLayout(t *testing.T) {
	var out = FormatElapsed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.Equal(t, "2024-03-01 12:00:00", out)
}
