package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TradeHandler is called for every trade received on a subscribed stream.
type TradeHandler func(TradeEvent)

// WSClient is a WebSocket client for the Binance spot market data streams.
// It manages the connection lifecycle, stream subscriptions, and dispatches
// trades to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Stream names to restore on reconnect.
	subscribedStreams []string
	cmdID             int64

	// Handlers
	tradeHandlers []TradeHandler
	handlerMu     sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given stream host.
//
// wsHost is the stream root, e.g. "wss://stream.binance.com:9443". The client
// connects to its /ws endpoint and subscribes via control frames.
func NewWSClient(wsHost string) *WSClient {
	return &WSClient{
		wsURL: strings.TrimSuffix(wsHost, "/") + "/ws",
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive. Binance also pings from its side;
	// gorilla's default ping handler answers those during reads.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start the read loop and ping loop.
	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	if len(w.subscribedStreams) > 0 {
		if err := w.sendCommand("SUBSCRIBE", w.subscribedStreams); err != nil {
			return fmt.Errorf("binance/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// SubscribeTrades subscribes to the trade stream for each exchange symbol.
func (w *WSClient) SubscribeTrades(ctx context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("binance/ws: not connected")
	}

	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, strings.ToLower(sym)+"@trade")
	}

	if err := w.sendCommand("SUBSCRIBE", streams); err != nil {
		return fmt.Errorf("binance/ws: subscribe trades: %w", err)
	}

	// Track subscriptions for reconnection.
	existing := make(map[string]struct{}, len(w.subscribedStreams))
	for _, s := range w.subscribedStreams {
		existing[s] = struct{}{}
	}
	for _, s := range streams {
		if _, ok := existing[s]; !ok {
			w.subscribedStreams = append(w.subscribedStreams, s)
		}
	}

	return nil
}

// OnTrade registers a handler that is called for every trade event.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a stream control frame. Caller must hold w.mu.
func (w *WSClient) sendCommand(method string, streams []string) error {
	w.cmdID++

	cmd := wsCommand{
		Method: method,
		Params: streams,
		ID:     w.cmdID,
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the WebSocket and dispatches
// them to the registered handlers. It runs in its own goroutine.
// On disconnect, it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop restarts via reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes trade events.
// Control frame acknowledgements and unknown event types are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.EventType {
	case "trade":
		var trade TradeEvent
		if err := json.Unmarshal(raw, &trade); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(trade)
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
