package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/models"
)

type fakeQuoteSource struct {
	mu      sync.Mutex
	fetched []string
}

func (f *fakeQuoteSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()
	return &models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(2500.5),
		Timestamp: time.Now(),
	}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readBatch(t *testing.T, conn *websocket.Conn) quoteBatch {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var batch quoteBatch
	require.NoError(t, json.Unmarshal(data, &batch))
	return batch
}

func TestHub_ConnectTimeSnapshot(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS", "TCS.NS"}, time.Hour, quietLogger())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	// The first batch arrives without waiting for a scheduled tick.
	batch := readBatch(t, conn)
	assert.Equal(t, "quotes", batch.Type)
	require.Len(t, batch.Quotes, 2)

	symbols := []string{batch.Quotes[0].Symbol, batch.Quotes[1].Symbol}
	assert.ElementsMatch(t, []string{"RELIANCE.NS", "TCS.NS"}, symbols)
}

func TestHub_WatchPushesOutOfBand(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS"}, time.Hour, quietLogger())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	readBatch(t, conn) // connect-time snapshot

	require.NoError(t, conn.WriteJSON(watchMsg{Action: "watch", Symbols: []string{"INFY.NS"}}))

	// The watch reply covers only the requested symbols.
	batch := readBatch(t, conn)
	require.Len(t, batch.Quotes, 1)
	assert.Equal(t, "INFY.NS", batch.Quotes[0].Symbol)

	// And the shared watch set now includes the extra symbol.
	assert.Eventually(t, func() bool {
		return len(hub.watched.Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DisconnectReleasesWatches(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS"}, time.Hour, quietLogger())

	conn, cleanup := dialHub(t, hub)

	readBatch(t, conn)
	require.NoError(t, conn.WriteJSON(watchMsg{Action: "watch", Symbols: []string{"INFY.NS"}}))
	readBatch(t, conn)

	cleanup()

	assert.Eventually(t, func() bool {
		return len(hub.watched.Snapshot()) == 1 && hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_TickBroadcastsToAllClients(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS"}, time.Hour, quietLogger())

	first, cleanupFirst := dialHub(t, hub)
	defer cleanupFirst()
	second, cleanupSecond := dialHub(t, hub)
	defer cleanupSecond()

	readBatch(t, first)
	readBatch(t, second)

	// Drive one tick by hand instead of waiting on the schedule.
	hub.tick()

	assert.Equal(t, "quotes", readBatch(t, first).Type)
	assert.Equal(t, "quotes", readBatch(t, second).Type)
}

func TestHub_IgnoresMalformedMessages(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS"}, time.Hour, quietLogger())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	readBatch(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(watchMsg{Action: "unknown", Symbols: []string{"X.NS"}}))

	// Connection stays up and the watch set is untouched.
	hub.tick()
	assert.Equal(t, "quotes", readBatch(t, conn).Type)
	assert.Len(t, hub.watched.Snapshot(), 1)
}

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(&fakeQuoteSource{}, []string{"RELIANCE.NS"}, time.Second, quietLogger())
	require.NoError(t, hub.Start())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	readBatch(t, conn)

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())
}
