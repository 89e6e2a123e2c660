package control

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmirror/hostmirror/internal/sync"
)

func TestProgressSocket_StreamsSnapshots(t *testing.T) {
	release := make(chan struct{})

	router, engine, _ := newTestServer(t, &fakeLister{release: release})

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/sync/ws"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The current status arrives immediately on connect.
	var initial sync.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &initial))
	assert.Equal(t, sync.StatusIdle, initial.Status)

	_, err = engine.Start("default", sync.Overrides{})
	require.NoError(t, err)

	var started sync.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &started))
	assert.Equal(t, sync.StatusRunning, started.Status)
	assert.Equal(t, "default", started.AccountID)

	close(release)

	// Drain updates until the terminal snapshot arrives.
	for {
		var snap sync.Snapshot
		require.NoError(t, wsjson.Read(ctx, conn, &snap))

		if snap.Status == sync.StatusCompleted {
			assert.False(t, snap.Timing.Ended.IsZero())
			break
		}
	}
}
