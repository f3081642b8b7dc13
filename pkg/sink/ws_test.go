package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/pose"
)

func testSnapshot(seq uint64) pose.Snapshot {
	var snap pose.Snapshot
	for i, name := range glove.AllFingers() {
		snap.Fingers[i] = pose.FingerPose{Name: name, Degrees: float64(i * 10)}
	}
	snap.Wrist = glove.Identity
	snap.State = pose.Calibrated
	snap.Seq = seq
	return snap
}

func TestWSHub_PoseEndpoint(t *testing.T) {
	hub := NewWSHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/pose")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, hub.Apply(context.Background(), testSnapshot(7)))

	resp, err = http.Get(srv.URL + "/api/pose")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Seq   uint64 `json:"seq"`
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, "calibrated", got.State)
}

func TestWSHub_Broadcast(t *testing.T) {
	hub := NewWSHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Apply(context.Background(), testSnapshot(3)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			Seq     uint64 `json:"seq"`
			Fingers []struct {
				Name    string  `json:"name"`
				Degrees float64 `json:"degrees"`
			} `json:"fingers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "pose", msg.Type)
	assert.Equal(t, uint64(3), msg.Data.Seq)
	require.Len(t, msg.Data.Fingers, glove.NumFingers)
	assert.Equal(t, "thumb", msg.Data.Fingers[4].Name)
	assert.Equal(t, 40.0, msg.Data.Fingers[4].Degrees)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWSHub_ApplyNeverWaitsOnClients(t *testing.T) {
	hub := NewWSHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Close()

	// This client never reads.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	var slowest time.Duration
	for i := 0; i < 20000; i++ {
		start := time.Now()
		require.NoError(t, hub.Apply(context.Background(), testSnapshot(uint64(i))))
		slowest = max(slowest, time.Since(start))
	}
	assert.Less(t, slowest, 100*time.Millisecond)
}

func TestWSHub_FullClientMissesSnapshots(t *testing.T) {
	hub := NewWSHub()
	c := &wsClient{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	require.NoError(t, hub.Apply(context.Background(), testSnapshot(1)))
	require.NoError(t, hub.Apply(context.Background(), testSnapshot(2)))
	require.Len(t, c.send, 1)

	var first WSMessage
	require.NoError(t, json.Unmarshal(<-c.send, &first))
	assert.Equal(t, "pose", first.Type)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st HubStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, HubStatus{Clients: 1, HavePose: true, Seq: 2, Dropped: 1}, st)
}

func TestWSHub_WriteFailureDropsClient(t *testing.T) {
	hub := NewWSHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// Break the server side of the connection.
	hub.mu.RLock()
	for c := range hub.clients {
		c.conn.Close()
	}
	hub.mu.RUnlock()

	require.NoError(t, hub.Apply(context.Background(), testSnapshot(1)))
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, hub.Close())
}
