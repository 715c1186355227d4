package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/glutensense/pkg/gsense"
	"github.com/itohio/glutensense/pkg/meter"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_Publish(t *testing.T) {
	s := New(nil)
	s.SetSampleRate(40)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	ts := time.UnixMilli(1700000000123)
	s.Publish(gsense.Reading{Timestamp: ts, Resistance: 5005.25})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, Message{Resistance: 5005.25, SampleRate: 40, Stamp: 1700000000123}, msg)
}

func TestServer_ClientDisconnect(t *testing.T) {
	s := New(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Publishing with no clients is a no-op.
	s.Publish(gsense.Reading{Timestamp: time.Now(), Resistance: 1})
}

func TestServer_Last(t *testing.T) {
	s := New(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/last")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	s.Publish(gsense.Reading{Timestamp: time.UnixMilli(42), Resistance: 12.345})

	resp, err = http.Get(srv.URL + "/api/last")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var msg Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, 12.345, msg.Resistance)
	assert.Equal(t, int64(42), msg.Stamp)
}

type fakeHistory struct {
	readings []gsense.Reading
	events   []meter.Event
}

func (f fakeHistory) Readings() []gsense.Reading { return f.readings }
func (f fakeHistory) Events() []meter.Event      { return f.events }
func (f fakeHistory) Baseline() float64          { return 1000 }

func getHistory(t *testing.T, url string) (int, History) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var h History
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	}
	return resp.StatusCode, h
}

func TestServer_History(t *testing.T) {
	s := New(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, _ := getHistory(t, srv.URL+"/api/history")
	assert.Equal(t, http.StatusNoContent, code)

	src := fakeHistory{
		events: []meter.Event{{
			StartTime: time.UnixMilli(1000),
			EndTime:   time.UnixMilli(3000),
			Peak:      1100,
			Response:  0.1,
		}},
	}
	for i := 0; i < 10; i++ {
		src.readings = append(src.readings, gsense.Reading{
			Timestamp:  time.UnixMilli(int64(i) * 100),
			Resistance: float64(1000 + i),
		})
	}
	s.SetHistory(src)

	code, h := getHistory(t, srv.URL+"/api/history")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1000.0, h.Baseline)
	assert.Len(t, h.Points, 10)
	assert.Equal(t, []Exposure{{Start: 1000, End: 3000, Peak: 1100, Response: 0.1}}, h.Events)

	code, h = getHistory(t, srv.URL+"/api/history?points=5")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, h.Points, 5)
	assert.Equal(t, Point{Resistance: 1002, Stamp: 200}, h.Points[1])

	code, _ = getHistory(t, srv.URL+"/api/history?points=x")
	assert.Equal(t, http.StatusBadRequest, code)
}
