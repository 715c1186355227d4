package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/gsense"
	"github.com/itohio/glutensense/pkg/meter"
	"github.com/itohio/glutensense/pkg/sample"
)

const (
	clientQueue = 64

	// DefaultHistoryPoints bounds /api/history when no points parameter is given.
	DefaultHistoryPoints = 500
)

// Message is the JSON structure sent to every websocket client.
type Message struct {
	Resistance float64 `json:"resistance"` // ohm
	SampleRate int     `json:"sampleRate"` // Hz
	Stamp      int64   `json:"stamp"`      // Unix ms
}

// HistorySource provides the analysis window served on /api/history.
// *meter.Meter implements it.
type HistorySource interface {
	Readings() []gsense.Reading
	Events() []meter.Event
	Baseline() float64
}

// Point is one downsampled reading in a History.
type Point struct {
	Resistance float64 `json:"resistance"`
	Stamp      int64   `json:"stamp"`
}

// Exposure is a detected event in a History.
type Exposure struct {
	Start    int64   `json:"start"` // Unix ms
	End      int64   `json:"end"`
	Peak     float64 `json:"peak"`
	Response float64 `json:"response"`
	Active   bool    `json:"active"`
}

// History is the JSON body of /api/history.
type History struct {
	Baseline float64    `json:"baseline"`
	Points   []Point    `json:"points"`
	Events   []Exposure `json:"events"`
}

// Server streams live readings to websocket clients.
type Server struct {
	log *zap.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	sampleRate atomic.Int32
	last       atomic.Pointer[Message]
	skipped    atomic.Uint64
	history    atomic.Pointer[HistorySource]
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a new Server.
func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:     log,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes: /ws for the stream, /api/last for
// the most recent reading and /api/history for the analysis window.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/last", s.handleLast)
	mux.HandleFunc("/api/history", s.handleHistory)
	return mux
}

// SetHistory sets the source of /api/history.
func (s *Server) SetHistory(src HistorySource) {
	s.history.Store(&src)
}

// Run serves Handler on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info("monitor listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SetSampleRate sets the rate reported with every message.
func (s *Server) SetSampleRate(hz int) {
	s.sampleRate.Store(int32(hz))
}

// Publish sends r to every connected client. Slow clients skip messages.
func (s *Server) Publish(r gsense.Reading) {
	msg := &Message{
		Resistance: r.Resistance,
		SampleRate: int(s.sampleRate.Load()),
		Stamp:      r.Timestamp.UnixMilli(),
	}
	s.last.Store(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			s.skipped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Skipped counts messages not delivered to slow clients.
func (s *Server) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	msg := s.last.Load()
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	src := s.history.Load()
	if src == nil || *src == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	points := DefaultHistoryPoints
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid points", http.StatusBadRequest)
			return
		}
		points = n
	}

	readings := sample.Downsample(nil, (*src).Readings(), points)
	events := (*src).Events()

	h := History{
		Baseline: (*src).Baseline(),
		Points:   make([]Point, len(readings)),
		Events:   make([]Exposure, len(events)),
	}
	for i, rd := range readings {
		h.Points[i] = Point{Resistance: rd.Resistance, Stamp: rd.Timestamp.UnixMilli()}
	}
	for i, e := range events {
		h.Events[i] = Exposure{
			Start:    e.StartTime.UnixMilli(),
			End:      e.EndTime.UnixMilli(),
			Peak:     e.Peak,
			Response: e.Response,
			Active:   e.Active,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientQueue),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.log.Debug("client connected", zap.Int("clients", n))

	// Writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader; only detects disconnects.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			close(client.send)
			n := len(s.clients)
			s.clientsMu.Unlock()
			s.log.Debug("client disconnected", zap.Int("clients", n))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
