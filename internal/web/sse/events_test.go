package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent returns the event name and data line of the next message.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestBroker_StreamsEvents(t *testing.T) {
	b := newBroker(time.Hour)
	defer b.Stop()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	name, _ := readEvent(t, reader)
	require.Equal(t, "connected", name)
	assert.Equal(t, 1, b.ClientCount())

	b.InventoryChanged("cartridges", "created", 42)

	name, data := readEvent(t, reader)
	assert.Equal(t, string(EventInventoryChanged), name)
	assert.JSONEq(t, `{"type":"inventory_changed","data":{"entity":"cartridges","action":"created","id":42}}`, data)
}

func TestBroker_StopIsIdempotent(t *testing.T) {
	b := newBroker(time.Hour)
	b.Stop()
	b.Stop()

	// Broadcasting after stop is a no-op.
	b.Broadcast(Event{Type: EventBackupCompleted})

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
