package gomarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goquant/arbsentinel/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than pongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsReconnectDelay is the base delay before attempting to reconnect.
	wsReconnectDelay = 2 * time.Second

	// wsMaxReconnectDelay caps the exponential backoff.
	wsMaxReconnectDelay = 60 * time.Second
)

// wsEnvelope is the gateway's push message for a single (exchange, symbol)
// stream.
type wsEnvelope struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	BidPrice  float64 `json:"bid_price"`
	BidSize   float64 `json:"bid_size"`
	AskPrice  float64 `json:"ask_price"`
	AskSize   float64 `json:"ask_size"`
	Timestamp int64   `json:"timestamp_ms"`
}

type wsCommand struct {
	Op       string `json:"op"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// wsSubscription is one live quote stream. It owns its connection and
// reconnects with exponential backoff until closed.
type wsSubscription struct {
	client   *Client
	exchange string
	symbol   string
	onQuote  domain.QuoteHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

var _ domain.Subscription = (*wsSubscription)(nil)

// Subscribe opens a push stream for symbol on exchange and invokes onQuote
// for every update until the subscription is closed or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, exchange, symbol string, onQuote domain.QuoteHandler) (domain.Subscription, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("gomarket/ws: no websocket endpoint configured: %w", domain.ErrUnsupported)
	}

	sub := &wsSubscription{
		client:   c,
		exchange: exchange,
		symbol:   symbol,
		onQuote:  onQuote,
		done:     make(chan struct{}),
	}
	if err := sub.connect(ctx); err != nil {
		return nil, err
	}

	go sub.run(ctx)
	return sub, nil
}

func (s *wsSubscription) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	header := make(map[string][]string)
	if s.client.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + s.client.apiKey}
	}
	if s.client.accessCode != "" {
		header["Access-Code"] = []string{s.client.accessCode}
	}

	conn, _, err := dialer.DialContext(ctx, s.client.wsURL, header)
	if err != nil {
		return fmt.Errorf("gomarket/ws: connect: %w (%w)", err, domain.ErrDataUnavailable)
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	cmd := wsCommand{Op: "subscribe", Exchange: s.exchange, Symbol: s.symbol}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(cmd); err != nil {
		conn.Close()
		return fmt.Errorf("gomarket/ws: subscribe %s/%s: %w", s.exchange, s.symbol, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// run reads frames until the subscription closes, reconnecting after
// connection loss.
func (s *wsSubscription) run(ctx context.Context) {
	go s.pingLoop(ctx)

	delay := wsReconnectDelay
	for {
		err := s.readLoop(ctx)
		if err == nil || s.isClosed() || ctx.Err() != nil {
			return
		}

		select {
		case <-time.After(delay):
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}

		if err := s.connect(ctx); err != nil {
			continue
		}
		delay = wsReconnectDelay
	}
}

func (s *wsSubscription) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gomarket/ws: not connected")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		quote := domain.Quote{
			Exchange:   env.Exchange,
			Symbol:     env.Symbol,
			BidPrice:   env.BidPrice,
			BidSize:    env.BidSize,
			AskPrice:   env.AskPrice,
			AskSize:    env.AskSize,
			ObservedAt: observedAt(env.Timestamp),
		}
		if !quote.Valid() {
			continue
		}
		s.onQuote(ctx, quote)
	}
}

func (s *wsSubscription) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.PingMessage, nil)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears down the stream. It is safe to call more than once.
func (s *wsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		return s.conn.Close()
	}
	return nil
}
