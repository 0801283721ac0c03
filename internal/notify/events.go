package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// Watcher bridges the event bus to the notifier: it subscribes to the
// payment, escrow, and auction channels and turns their events into operator
// notifications.
type Watcher struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher publishing through notifier.
func NewWatcher(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run subscribes to the event channels and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	channels := []string{domain.ChannelPayments, domain.ChannelEscrows, domain.ChannelAuctions, domain.ChannelOffers}

	subs := make([]domain.Subscription, 0, len(channels))
	for _, ch := range channels {
		sub, err := w.bus.Subscribe(ctx, ch)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("notify: subscribe %s: %w", ch, err)
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	merged := make(chan busMessage, 64)
	for i, sub := range subs {
		go forward(ctx, channels[i], sub, merged)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-merged:
			w.handle(ctx, msg.channel, msg.payload)
		}
	}
}

type busMessage struct {
	channel string
	payload []byte
}

func forward(ctx context.Context, channel string, sub domain.Subscription, out chan<- busMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			select {
			case out <- busMessage{channel: channel, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, channel string, payload []byte) {
	switch channel {
	case domain.ChannelPayments:
		w.handlePayment(ctx, payload)
	default:
		w.handleTagged(ctx, payload)
	}
}

// handlePayment reports terminal payment outcomes. Only failures are
// interesting to operators by default; the confirmed event exists for
// completeness and is filtered by configuration.
func (w *Watcher) handlePayment(ctx context.Context, payload []byte) {
	var rec domain.PaymentRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		w.logger.Warn("bad payment event payload", slog.String("error", err.Error()))
		return
	}

	if rec.Success {
		_ = w.notifier.Notify(ctx, "payment.confirmed", "Payment confirmed",
			fmt.Sprintf("request %s confirmed, signature %s", rec.RequestID, rec.TxSignature))
		return
	}
	_ = w.notifier.Notify(ctx, "payment.failed", "Payment failed",
		fmt.Sprintf("request %s failed permanently: %s", rec.RequestID, rec.ErrorCode))
}

// handleTagged reports escrow, auction, and offer events, which carry an
// explicit event name in the payload envelope.
func (w *Watcher) handleTagged(ctx context.Context, payload []byte) {
	var envelope struct {
		Event   string          `json:"event"`
		Escrow  *domain.EscrowAccount `json:"escrow"`
		Auction *domain.Auction `json:"auction"`
		Offer   *domain.Offer   `json:"offer"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		w.logger.Warn("bad event payload", slog.String("error", err.Error()))
		return
	}
	if envelope.Event == "" {
		return
	}

	var detail string
	switch {
	case envelope.Escrow != nil:
		detail = fmt.Sprintf("escrow %s (%.4f %s) buyer=%s seller=%s",
			envelope.Escrow.ID, envelope.Escrow.Amount(), envelope.Escrow.Currency,
			envelope.Escrow.Buyer, envelope.Escrow.Seller)
	case envelope.Auction != nil:
		detail = fmt.Sprintf("auction %s nft=%s current bid %.4f %s",
			envelope.Auction.ID, envelope.Auction.NFTID,
			float64(envelope.Auction.CurrentBid)/domain.LamportsPerSol, envelope.Auction.Currency)
	case envelope.Offer != nil:
		detail = fmt.Sprintf("offer %s nft=%s bidder=%s amount %.4f %s",
			envelope.Offer.ID, envelope.Offer.NFTID, envelope.Offer.Bidder,
			envelope.Offer.Amount(), envelope.Offer.Currency)
	}

	_ = w.notifier.Notify(ctx, envelope.Event, envelope.Event, detail)
}
