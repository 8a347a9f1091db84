// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/robot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local network use
	},
}

// liveStatus keeps the latest control cycle for reporting.
type liveStatus struct {
	mu     sync.RWMutex
	status control.Status
	have   bool
}

func (l *liveStatus) set(st control.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = st
	l.have = true
}

func (l *liveStatus) get() (control.Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status, l.have
}

// StateReport is served by /api/state and pushed over /ws.
type StateReport struct {
	robot.Snapshot
	Control *control.Status `json:"control,omitempty"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

type speedResponse struct {
	TargetSpeed float64 `json:"target_speed"`
}

type webServer struct {
	state  *robot.State
	status *liveStatus
	push   time.Duration
	// stop ends every websocket push loop; hijacked connections are not
	// closed by http.Server.Shutdown.
	stop <-chan struct{}
}

func (s *webServer) report() StateReport {
	r := StateReport{Snapshot: s.state.Snapshot()}
	if st, ok := s.status.get(); ok {
		r.Control = &st
	}
	return r
}

func (s *webServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/speed", s.handleSpeed)
	mux.HandleFunc("/ws", s.handleWS)

	// Static files from ./web as the root, when present
	if info, err := os.Stat("web"); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir("web")))
	}
	return mux
}

func (s *webServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.report()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *webServer) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	stored := s.state.SetTargetSpeed(req.Speed)
	log.Printf("web: target speed set to %.1f cm/s", stored)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(speedResponse{TargetSpeed: stored}); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleWS pushes a StateReport every push interval until the client goes
// away.
func (s *webServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// the reader only notices the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.push)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.report()); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-s.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

// serveWeb runs the dashboard until ctx is cancelled.
func serveWeb(ctx context.Context, port int, srv *webServer) error {
	srv.stop = ctx.Done()
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
