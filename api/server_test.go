package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridesim/model"
)

func TestHandleStatusReturnsNoContentBeforeFirstSnapshot(t *testing.T) {
	s := New()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleStatusReturnsLatestSnapshotAfterWatch(t *testing.T) {
	s := New()
	ch := make(chan model.Snapshot, 1)
	ch <- model.Snapshot{Time: 42, HV: model.MarketState{NV: 3}}
	close(ch)
	s.Watch(ch)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, 42.0, got.Time)
	require.Equal(t, 3, got.HV.NV)
}

func TestHandleStreamDeliversSnapshotsAsServerSentEvents(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	done := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				done <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()

	// Give the handler time to register its subscriber before publishing.
	time.Sleep(20 * time.Millisecond)
	ch := make(chan model.Snapshot, 1)
	ch <- model.Snapshot{Time: 7, AV: model.MarketState{NV: 1}}
	close(ch)
	s.Watch(ch)

	select {
	case payload := <-done:
		var got model.Snapshot
		require.NoError(t, json.Unmarshal([]byte(payload), &got))
		require.Equal(t, 7.0, got.Time)
		require.Equal(t, 1, got.AV.NV)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE payload")
	}
}
