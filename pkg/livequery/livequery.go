// Package livequery adapts pkg/ingest/websocket.go's connection
// lifecycle (upgrade, ping-keepalive goroutine, blocking read loop for
// close detection) to a different fan-out shape: instead of one
// MetricsHub broadcasting every ingested point to every connected
// client, each connection here owns exactly one parsed query and gets
// its own private re-run loop, pushing a fresh result to nobody but
// itself every push interval. There is no hub, no registry, and no
// broadcast channel, because there is nothing to share between
// connections watching different queries.
package livequery

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chronosdb/chronosdb/pkg/config"
	"github.com/chronosdb/chronosdb/pkg/querydriver"
	"github.com/chronosdb/chronosdb/pkg/queryplan"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// Handler upgrades /api/query/live requests and re-runs one query per
// connection on a fixed interval.
type Handler struct {
	driver   *querydriver.Handler
	interval time.Duration
}

// New builds a Handler pushing results from driver every interval.
func New(driver *querydriver.Handler, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = config.WSPushInterval
	}
	return &Handler{driver: driver, interval: interval}
}

// ServeHTTP parses one URL-form query from the request and upgrades
// the connection, rejecting with a plain-text 400 on bad query
// parameters before ever upgrading (an upgraded connection has no way
// to report an HTTP status).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query, err := h.driver.ParseURLQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("livequery: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)

	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	go h.pushLoop(ctx, cancel, conn, query)

	// Blocks until the client closes or the connection errors; this is
	// also how a ping timeout surfaces, since ReadMessage returns once
	// the read deadline set above lapses without a pong.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("livequery: read error: %v", err)
			}
			cancel()
			return
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(config.WSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushLoop re-runs query's full plan/execute/group/aggregate/rate
// pipeline every push interval and writes the serialized result as a
// text frame. It exits (and cancels ctx, tearing down the read loop
// and ping loop with it) the first time either the pipeline or the
// write fails, since a connection that can no longer receive pushes
// has nothing left to do.
func (h *Handler) pushLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, query *queryplan.Query) {
	defer cancel()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	push := func() bool {
		results, err := h.driver.Execute(ctx, []*queryplan.Query{query})
		if err != nil {
			log.Printf("livequery: query failed: %v", err)
			return false
		}
		body, err := querydriver.BuildResponse(results, h.driver.MaxBytes())
		if err != nil {
			log.Printf("livequery: result too large to push: %v", err)
			return false
		}
		conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return false
		}
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}
