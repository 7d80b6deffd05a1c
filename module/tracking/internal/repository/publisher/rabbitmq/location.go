package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher"
)

var _ publisher.LocationPublisher = (*LocationPublisher)(nil)

const (
	ExchangeName = "delivery.tracking"
	QueueName    = "rider_locations"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type LocationPublisher struct {
	ch channel
}

func NewLocationPublisher(conn *amqp.Connection) (*LocationPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &LocationPublisher{ch: ch}, nil
}

type locationMessage struct {
	EventID           string  `json:"event_id"`
	RiderID           string  `json:"rider_id"`
	OrderID           string  `json:"order_id"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Bearing           float64 `json:"bearing"`
	Speed             float64 `json:"speed"`
	Progress          float64 `json:"progress"`
	DistanceCovered   float64 `json:"distance_covered"`
	RemainingDistance float64 `json:"remaining_distance"`
	Snapped           bool    `json:"snapped"`
	OnRoute           bool    `json:"on_route"`
	Timestamp         int64   `json:"timestamp"`
}

func (p *LocationPublisher) PublishLocation(ctx context.Context, update *domain.LocationUpdate) error {
	loc := update.Location
	msg := locationMessage{
		EventID:           update.EventID,
		RiderID:           update.RiderID,
		OrderID:           update.OrderID,
		Latitude:          loc.Lat,
		Longitude:         loc.Lng,
		Bearing:           loc.Bearing,
		Speed:             loc.Speed,
		Progress:          loc.Progress,
		DistanceCovered:   loc.DistanceCovered,
		RemainingDistance: loc.RemainingDistance,
		Snapped:           loc.Snapped,
		OnRoute:           loc.OnRoute,
		Timestamp:         loc.Timestamp.UnixMilli(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	return p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   update.EventID,
		Body:        body,
	})
}
