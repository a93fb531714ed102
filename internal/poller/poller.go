package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const consumerGroup = "storefront-cart"

// CartClearer empties a user's cart.
type CartClearer interface {
	Clear(ctx context.Context, identity domain.Identity) error
}

// CheckoutCompleted is published once a user's checkout has gone through.
type CheckoutCompleted struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

// Poller empties carts of users whose checkout completed.
type Poller struct {
	carts  CartClearer
	reader *kafka.Reader
	log    *slog.Logger
}

func NewPoller(carts CartClearer, log *slog.Logger, topic string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  consumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			p.log.ErrorContext(ctx, "error reading checkout message", "error", err)
			continue
		}
		p.handleMessage(ctx, m.Value)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing kafka reader", "error", err)
	}
}

// handleMessage clears the cart named by a checkout event. Malformed events
// are logged and skipped.
func (p *Poller) handleMessage(ctx context.Context, value []byte) bool {
	var event CheckoutCompleted
	if err := json.Unmarshal(value, &event); err != nil {
		p.log.WarnContext(ctx, "error parsing checkout message", "error", err)
		return false
	}
	userID, err := primitive.ObjectIDFromHex(event.UserID)
	if err != nil {
		p.log.WarnContext(ctx, "missing or invalid user_id", "checkout_id", event.CheckoutID, "user_id", event.UserID)
		return false
	}

	if err := p.carts.Clear(ctx, domain.Identity{UserID: userID}); err != nil {
		p.log.ErrorContext(ctx, "failed to clear cart after checkout",
			"checkout_id", event.CheckoutID,
			"user_id", event.UserID,
			"error", err,
		)
		return false
	}
	p.log.InfoContext(ctx, "cart cleared after checkout", "checkout_id", event.CheckoutID, "user_id", event.UserID)
	return true
}
