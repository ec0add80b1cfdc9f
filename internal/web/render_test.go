package web

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDashboard(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "dashboard", map[string]any{
		"Title":        "Sessions",
		"Started":      time.Now().Add(-time.Minute),
		"Reserved":     3,
		"Waiting":      1,
		"ActiveRelays": 2,
		"Created":      int64(10),
		"Paired":       int64(4),
		"Expired":      int64(2),
		"Rejected":     int64(0),
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "<title>zebra-signal · Sessions</title>")
	assert.Contains(t, out, "<th>Active relays</th><td>2</td>")
	assert.Contains(t, out, "up 1m0s")
}

func TestRenderUnknownTemplate(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, "missing", nil))
}
