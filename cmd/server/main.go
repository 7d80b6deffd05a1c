package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/courier-tracking/config"
	"github.com/nandanugg/courier-tracking/module/tracking"
)

func main() {
	config.InitLogging("")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	health := config.NewHealthChecker()

	db, err := config.NewPostgres(cfg)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
		health.Add("postgres", config.PostgresCheck(db))
	} else {
		log.Printf("POSTGRES_DSN not set, maps key from MAPS_API_KEY only")
	}

	var amqpConn *amqp.Connection
	var nc *nats.Conn
	switch cfg.BroadcastBackend {
	case config.BroadcastRabbitMQ:
		amqpConn, err = config.NewRabbitMQ(cfg)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer func() { _ = amqpConn.Close() }()
		health.Add("rabbitmq", config.RabbitMQCheck(amqpConn))
	case config.BroadcastNATS:
		nc, err = config.NewNATS(cfg, "courier-tracking")
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer func() { _ = nc.Drain() }()
		health.Add("nats", config.NATSCheck(nc))
	}

	mqttClient, err := config.NewMQTT(cfg)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer mqttClient.Disconnect(250)
	health.Add("mqtt", config.MQTTCheck(mqttClient))

	trackingModule, err := tracking.Build(tracking.Options{
		MQTTTopic:         cfg.MQTTTopic,
		MapsAPIKey:        cfg.MapsAPIKey,
		RoadsURL:          cfg.RoadsURL,
		DirectionsURL:     cfg.DirectionsURL,
		SnapInterpolate:   cfg.SnapInterpolate,
		SnapTimeout:       cfg.SnapTimeout,
		DirectionsTimeout: cfg.DirectionsTimeout,
		KeyLookupTimeout:  cfg.KeyLookupTimeout,
		HistoryCapacity:   cfg.HistoryCapacity,
		HistoryTTL:        cfg.HistoryTTL,
		RouteCapacity:     cfg.RouteCapacity,
		RouteTTL:          cfg.RouteTTL,
	}, tracking.Infra{
		DB:   db,
		AMQP: amqpConn,
		NATS: nc,
		MQTT: mqttClient,
	})
	if err != nil {
		log.Fatalf("tracking module: %v", err)
	}
	defer trackingModule.Close()

	if err := trackingModule.StartSubscribers(); err != nil {
		log.Fatalf("start subscribers: %v", err)
	}

	r := gin.Default()

	health.Register(r)
	r.GET("/metrics", gin.WrapH(trackingModule.MetricsHandler()))

	trackingModule.RegisterRoutes(&r.RouterGroup)

	log.Printf("listening on :%s (broadcast=%s)", cfg.HTTPPort, cfg.BroadcastBackend)
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatalf("server: %v", err)
	}
}
