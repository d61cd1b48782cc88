package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/icpay/backend/internal/models"
)

// NATSPublisher broadcasts appended balance events on the message bus so
// downstream consumers (notifications, analytics) can react without polling
// the database. Publication is fire-and-forget; the balance_events table
// stays the source of truth.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("icpay-backend"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// PublishBalanceEvent emits the event on ledger.events.<kind>.
func (p *NATSPublisher) PublishBalanceEvent(e *models.BalanceChangeEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("marshaling balance event", "error", err)
		return
	}
	subject := fmt.Sprintf("ledger.events.%s", e.Kind)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publishing balance event", "subject", subject, "error", err)
	}
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("draining nats connection", "error", err)
	}
}
