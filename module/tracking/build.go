package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	handler "github.com/nandanugg/courier-tracking/module/tracking/internal/handler/http"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/handler/subscriber"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/metrics"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/database"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/database/postgres"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/maps/google"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher"
	natspub "github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher/nats"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/store"
	"github.com/nandanugg/courier-tracking/module/tracking/service"
)

type Options struct {
	MQTTTopic string

	MapsAPIKey      string
	RoadsURL        string
	DirectionsURL   string
	SnapInterpolate bool

	SnapTimeout       time.Duration
	DirectionsTimeout time.Duration
	KeyLookupTimeout  time.Duration

	HistoryCapacity int
	HistoryTTL      time.Duration
	RouteCapacity   int
	RouteTTL        time.Duration
}

// Infra holds the connections the module runs on. DB, AMQP and NATS are
// optional. When both AMQP and NATS are set, broadcasts go to RabbitMQ.
type Infra struct {
	DB   *sql.DB
	AMQP *amqp.Connection
	NATS *nats.Conn
	MQTT mqtt.Client
}

type broadcaster interface {
	Broadcast(ctx context.Context, riderID, orderID string, loc domain.ProcessedLocation) (*domain.LocationUpdate, error)
}

// Module wires the tracking pipeline to its transports. Broadcast is nil
// when no broker is configured.
type Module struct {
	Pipeline  *service.Pipeline
	Broadcast *service.BroadcastService
	metrics   *metrics.Collector
	handler   *handler.TrackingHandler
	sub       *subscriber.LocationSubscriber
}

func Build(opts Options, infra Infra) (*Module, error) {
	collector := metrics.NewCollector()

	var settings database.SettingsRepository
	if infra.DB != nil {
		settings = postgres.NewSettingsRepo(infra.DB)
	}
	keys := service.NewKeyService(settings, opts.MapsAPIKey)

	mapsClient := google.NewClient(google.Options{
		RoadsURL:      opts.RoadsURL,
		DirectionsURL: opts.DirectionsURL,
		Interpolate:   opts.SnapInterpolate,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	})

	history := store.NewHistoryStore(store.DefaultHistoryWindow, opts.HistoryCapacity, opts.HistoryTTL)
	routes := store.NewRouteStore(opts.RouteCapacity, opts.RouteTTL)
	collector.TrackCacheSize("history", history.Len)
	collector.TrackCacheSize("route", routes.Len)

	pipeline := service.NewPipeline(service.PipelineDeps{
		Snapper:    mapsClient,
		Directions: mapsClient,
		Keys:       keys,
		History:    history,
		Routes:     routes,
		Metrics:    collector,
	}, service.PipelineOptions{
		SnapTimeout:       opts.SnapTimeout,
		DirectionsTimeout: opts.DirectionsTimeout,
		KeyLookupTimeout:  opts.KeyLookupTimeout,
	})

	pub, err := newPublisher(infra)
	if err != nil {
		return nil, err
	}
	m := &Module{
		Pipeline: pipeline,
		metrics:  collector,
	}

	var bcast broadcaster
	if pub != nil {
		m.Broadcast = service.NewBroadcastService(pub, collector)
		bcast = m.Broadcast
	}

	m.handler = handler.NewTrackingHandler(pipeline, bcast)
	if infra.MQTT != nil {
		m.sub = subscriber.NewLocationSubscriber(infra.MQTT, opts.MQTTTopic, pipeline, bcast, collector)
	}
	return m, nil
}

func newPublisher(infra Infra) (publisher.LocationPublisher, error) {
	switch {
	case infra.AMQP != nil:
		pub, err := rabbitmq.NewLocationPublisher(infra.AMQP)
		if err != nil {
			return nil, fmt.Errorf("location publisher: %w", err)
		}
		return pub, nil
	case infra.NATS != nil:
		return natspub.NewLocationPublisher(infra.NATS), nil
	}
	return nil, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

func (m *Module) StartSubscribers() error {
	if m.sub == nil {
		return nil
	}
	return m.sub.Start()
}

func (m *Module) MetricsHandler() http.Handler {
	return m.metrics.Handler()
}

func (m *Module) Close() {
	m.Pipeline.Reset()
}
