package domain

import "context"

// QuoteHandler receives pushed quote updates from a subscription.
type QuoteHandler func(ctx context.Context, quote Quote)

// Subscription is a handle to a live quote feed. Close is idempotent.
type Subscription interface {
	Close() error
}

// MarketDataPort supplies L1 quotes and L2 depth per (exchange, symbol), via
// on-demand pulls and push subscriptions. Errors are classified by
// IsTransient; ErrUnsupported is permanent.
type MarketDataPort interface {
	FetchQuote(ctx context.Context, exchange, symbol string) (Quote, error)
	FetchDepth(ctx context.Context, exchange, symbol string) (OrderBook, error)
	Subscribe(ctx context.Context, exchange, symbol string, onQuote QuoteHandler) (Subscription, error)
	ListSymbols(ctx context.Context, exchange string) ([]string, error)
}

// MessageRef identifies a delivered message so it can later be edited.
type MessageRef struct {
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
}

// NotificationPort delivers and edits messages on an external messaging
// surface. Edit returns ErrNotEditable when the transport rejects in-place
// updates (for example because the message is too old), in which case the
// caller should fall back to a fresh Send.
type NotificationPort interface {
	Send(ctx context.Context, channel, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Name() string
}
