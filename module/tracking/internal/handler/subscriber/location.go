package subscriber

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-playground/validator/v10"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

const (
	DefaultTopic = "/delivery/rider/+/location"

	handleTimeout = 15 * time.Second
)

type locationPipeline interface {
	ProcessLocationUpdate(ctx context.Context, riderID, orderID string, raw domain.RawSample, hints *domain.RouteHints) domain.ProcessedLocation
}

type broadcaster interface {
	Broadcast(ctx context.Context, riderID, orderID string, loc domain.ProcessedLocation) (*domain.LocationUpdate, error)
}

type invalidCounter interface {
	InvalidMessage()
}

type coordinateMessage struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

type locationMessage struct {
	RiderID    string             `json:"rider_id" validate:"required"`
	OrderID    string             `json:"order_id" validate:"required"`
	Latitude   float64            `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64            `json:"longitude" validate:"min=-180,max=180"`
	Speed      *float64           `json:"speed,omitempty" validate:"omitempty,min=0"`
	Bearing    *float64           `json:"bearing,omitempty" validate:"omitempty,min=0,max=360"`
	Accuracy   *float64           `json:"accuracy,omitempty" validate:"omitempty,min=0"`
	Timestamp  int64              `json:"timestamp" validate:"gte=0"`
	Restaurant *coordinateMessage `json:"restaurant,omitempty" validate:"omitempty"`
	Customer   *coordinateMessage `json:"customer,omitempty" validate:"omitempty"`
}

type LocationSubscriber struct {
	client   mqtt.Client
	topic    string
	pipeline locationPipeline
	bcast    broadcaster
	invalid  invalidCounter
	validate *validator.Validate
}

func NewLocationSubscriber(client mqtt.Client, topic string, pipeline locationPipeline, bcast broadcaster, invalid invalidCounter) *LocationSubscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &LocationSubscriber{
		client:   client,
		topic:    topic,
		pipeline: pipeline,
		bcast:    bcast,
		invalid:  invalid,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *LocationSubscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Printf("invalid location message: %v", err)
		s.reject()
		return
	}
	if raw.RiderID == "" {
		raw.RiderID = riderFromTopic(msg.Topic())
	}

	if err := s.validate.Struct(&raw); err != nil {
		log.Printf("validation error: %v", err)
		s.reject()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	loc := s.pipeline.ProcessLocationUpdate(ctx, raw.RiderID, raw.OrderID, raw.toSample(), raw.hints())

	if s.bcast == nil {
		return
	}
	if _, err := s.bcast.Broadcast(ctx, raw.RiderID, raw.OrderID, loc); err != nil {
		log.Printf("broadcast location error: %v", err)
	}
}

func (s *LocationSubscriber) reject() {
	if s.invalid != nil {
		s.invalid.InvalidMessage()
	}
}

// riderFromTopic extracts the wildcard segment of /delivery/rider/<id>/location.
func riderFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "delivery" || parts[1] != "rider" || parts[3] != "location" {
		return ""
	}
	return parts[2]
}

func (m *locationMessage) toSample() domain.RawSample {
	sample := domain.RawSample{
		Coordinate: domain.Coordinate{Lat: m.Latitude, Lng: m.Longitude},
		Speed:      m.Speed,
		Bearing:    m.Bearing,
		Accuracy:   m.Accuracy,
	}
	if m.Timestamp > 0 {
		sample.Timestamp = time.Unix(m.Timestamp, 0)
	}
	return sample
}

func (m *locationMessage) hints() *domain.RouteHints {
	if m.Restaurant == nil && m.Customer == nil {
		return nil
	}
	return &domain.RouteHints{
		Restaurant: m.Restaurant.coordinate(),
		Customer:   m.Customer.coordinate(),
	}
}

func (c *coordinateMessage) coordinate() *domain.Coordinate {
	if c == nil {
		return nil
	}
	return &domain.Coordinate{Lat: c.Latitude, Lng: c.Longitude}
}
