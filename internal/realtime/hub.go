// Package realtime fans live quotes out to subscribed websocket listeners.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"stockcast/internal/models"
)

// QuoteSource supplies the latest quote for a symbol. Satisfied by the
// marketdata provider client.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type watchMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type quoteBatch struct {
	Type      string         `json:"type"`
	Quotes    []models.Quote `json:"quotes"`
	Timestamp time.Time      `json:"timestamp"`
}

type client struct {
	conn    *websocket.Conn
	out     chan interface{}
	done    chan struct{}
	watched []string
}

// Hub owns the watched-symbol set and the scheduled broadcast. A newly
// connected listener immediately receives one unsolicited snapshot before
// the next scheduled tick; a watch request triggers an immediate
// out-of-band fetch+push for just that listener without disturbing the
// shared cadence.
type Hub struct {
	source   QuoteSource
	watched  *WatchedSymbolSet
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	cron *cron.Cron
}

func NewHub(source QuoteSource, defaultSymbols []string, interval time.Duration, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		source:   source,
		watched:  NewWatchedSymbolSet(defaultSymbols),
		interval: interval,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// Start schedules the broadcast tick. The loop runs for the process
// lifetime; Stop is only called at shutdown.
func (h *Hub) Start() error {
	h.cron = cron.New()
	if _, err := h.cron.AddFunc(fmt.Sprintf("@every %s", h.interval), h.tick); err != nil {
		return fmt.Errorf("failed to schedule broadcast loop: %w", err)
	}
	h.cron.Start()
	h.logger.Infof("Broadcast loop started with %s interval", h.interval)
	return nil
}

func (h *Hub) Stop() {
	if h.cron != nil {
		h.cron.Stop()
	}
	h.mu.Lock()
	for cl := range h.clients {
		close(cl.done)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	h.logger.Info("Broadcast loop stopped")
}

// tick fetches the full watched set once and broadcasts the batch to every
// connected listener.
func (h *Hub) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	quotes := h.fetchBatch(ctx, h.watched.Snapshot())
	if len(quotes) == 0 {
		return
	}
	h.broadcast(quoteBatch{Type: "quotes", Quotes: quotes, Timestamp: time.Now()})
}

func (h *Hub) fetchBatch(ctx context.Context, symbols []string) []models.Quote {
	quotes := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := h.source.GetQuote(ctx, symbol)
		if err != nil {
			h.logger.WithFields(logrus.Fields{"symbol": symbol}).Warnf("Quote fetch failed: %v", err)
			continue
		}
		quotes = append(quotes, *quote)
	}
	return quotes
}

func (h *Hub) broadcast(v interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.out <- v:
		default:
			// Slow listener: drop rather than stall the loop.
		}
	}
}

// ClientCount returns the number of connected listeners.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the connection and runs the listener until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cl := &client{
		conn: conn,
		out:  make(chan interface{}, 64),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[cl]; ok {
			delete(h.clients, cl)
			close(cl.done)
		}
		h.mu.Unlock()
		h.watched.Release(cl.watched)
	}()

	// Writer goroutine with keepalive pings.
	go func() {
		ping := time.NewTicker(45 * time.Second)
		defer ping.Stop()
		for {
			select {
			case v := <-cl.out:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			case <-ping.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			case <-cl.done:
				return
			}
		}
	}()

	// Connect-time snapshot so the listener never idles until the next tick.
	h.pushSnapshot(cl, h.watched.Snapshot())

	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg watchMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.Action != "watch" {
			continue
		}
		h.watched.Acquire(msg.Symbols)
		cl.watched = append(cl.watched, msg.Symbols...)
		// Out-of-band push for just this listener's requested set.
		h.pushSnapshot(cl, msg.Symbols)
	}
}

func (h *Hub) pushSnapshot(cl *client, symbols []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	quotes := h.fetchBatch(ctx, symbols)
	select {
	case cl.out <- quoteBatch{Type: "quotes", Quotes: quotes, Timestamp: time.Now()}:
	default:
	}
}
