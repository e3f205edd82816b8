// Package alert delivers condition alerts through a notification port,
// editing the previous message in place when a condition updates and
// suppressing duplicates inside the debounce window.
package alert

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// Config configures a Dispatcher.
type Config struct {
	// DebounceWindow suppresses re-sends of an unchanged payload for the
	// same condition key.
	DebounceWindow time.Duration
	RateLimit      int
	RateWindow     time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	HistorySize    int
	Logger         *slog.Logger
}

// Dispatcher routes alert payloads to a NotificationPort. Each condition key
// maps to at most one live message per channel: new payloads for a known key
// edit the existing message rather than sending a new one.
type Dispatcher struct {
	notifier domain.NotificationPort
	limiter  domain.RateLimiter
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	channels map[string]*channelState
}

type channelState struct {
	mu      sync.Mutex
	records map[string]*domain.AlertRecord
	history *historyRing
}

// New creates a Dispatcher sending through notifier, rate limited by limiter.
func New(notifier domain.NotificationPort, limiter domain.RateLimiter, cfg Config) *Dispatcher {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Dispatcher{
		notifier: notifier,
		limiter:  limiter,
		cfg:      cfg,
		logger:   cfg.Logger.With(slog.String("component", "alert_dispatcher")),
		channels: make(map[string]*channelState),
	}
}

func (d *Dispatcher) channel(name string) *channelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.channels[name]
	if !ok {
		st = &channelState{
			records: make(map[string]*domain.AlertRecord),
			history: newHistoryRing(d.cfg.HistorySize),
		}
		d.channels[name] = st
	}
	return st
}

// Notify delivers payload for conditionKey on channel. The first payload for
// a key sends a fresh message; subsequent changed payloads edit it in place,
// falling back to a single new send when the provider refuses the edit.
// Unchanged payloads inside the debounce window are dropped.
func (d *Dispatcher) Notify(ctx context.Context, conditionKey, payload, channel string) error {
	hash := payloadHash(payload)
	st := d.channel(channel)

	// Per-channel lock keeps deliveries on one channel strictly ordered.
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, known := st.records[conditionKey]
	now := time.Now()

	if known && rec.LastHash == hash && now.Sub(rec.LastSentAt) < d.cfg.DebounceWindow {
		d.logger.Debug("alert suppressed",
			slog.String("condition", conditionKey),
			slog.String("channel", channel),
		)
		return nil
	}

	if known && rec.LastHash == hash && now.Sub(rec.LastSentAt) >= d.cfg.DebounceWindow {
		// Same content past the window: refresh the timestamp only, the
		// message on the channel is already correct.
		rec.LastSentAt = now
		return nil
	}

	if err := d.limiter.Wait(ctx, "alert:"+channel, d.cfg.RateLimit, d.cfg.RateWindow); err != nil {
		return fmt.Errorf("alert: rate limit wait: %w", err)
	}

	if !known {
		ref, err := d.sendWithRetry(ctx, channel, payload)
		if err != nil {
			return err
		}
		st.records[conditionKey] = &domain.AlertRecord{
			ConditionKey: conditionKey,
			Channel:      channel,
			LastRef:      ref,
			LastHash:     hash,
			LastSentAt:   now,
		}
		st.history.add(*st.records[conditionKey])
		return nil
	}

	err := d.editWithRetry(ctx, rec.LastRef, payload)
	if errors.Is(err, domain.ErrNotEditable) {
		d.logger.Warn("edit rejected, sending replacement",
			slog.String("condition", conditionKey),
			slog.String("channel", channel),
		)
		ref, sendErr := d.sendWithRetry(ctx, channel, payload)
		if sendErr != nil {
			return sendErr
		}
		rec.LastRef = ref
		err = nil
	}
	if err != nil {
		return err
	}
	rec.LastHash = hash
	rec.LastSentAt = now
	st.history.add(*rec)
	return nil
}

// Clear forgets the live message for conditionKey on channel, so the next
// payload for that key sends a fresh message. Used when a condition closes.
func (d *Dispatcher) Clear(conditionKey, channel string) {
	st := d.channel(channel)
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.records, conditionKey)
}

// History returns up to limit most recent alert records for channel,
// newest first.
func (d *Dispatcher) History(channel string, limit int) []domain.AlertRecord {
	st := d.channel(channel)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.history.recent(limit)
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, channel, payload string) (domain.MessageRef, error) {
	var ref domain.MessageRef
	err := d.retry(ctx, func() error {
		var err error
		ref, err = d.notifier.Send(ctx, channel, payload)
		return err
	})
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("alert: send via %s: %w", d.notifier.Name(), err)
	}
	return ref, nil
}

func (d *Dispatcher) editWithRetry(ctx context.Context, ref domain.MessageRef, payload string) error {
	err := d.retry(ctx, func() error {
		err := d.notifier.Edit(ctx, ref, payload)
		if errors.Is(err, domain.ErrNotEditable) {
			// Permanent, retrying will not change the answer.
			return backoffStop{err}
		}
		return err
	})
	var stop backoffStop
	if errors.As(err, &stop) {
		return stop.err
	}
	if err != nil {
		return fmt.Errorf("alert: edit via %s: %w", d.notifier.Name(), err)
	}
	return nil
}

type backoffStop struct{ err error }

func (s backoffStop) Error() string { return s.err.Error() }
func (s backoffStop) Unwrap() error { return s.err }

func (d *Dispatcher) retry(ctx context.Context, op func() error) error {
	delay := d.cfg.RetryDelay
	var err error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		err = op()
		if err == nil {
			return nil
		}
		var stop backoffStop
		if errors.As(err, &stop) {
			return err
		}
		d.logger.Debug("delivery attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return errors.Join(domain.ErrDeliveryFailed, err)
}

func payloadHash(payload string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(payload))
	return h.Sum64()
}
