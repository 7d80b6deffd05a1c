package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/courier-tracking/config"
)

const (
	exchangeName = "delivery.tracking"
	queueName    = "rider_locations"
	natsSubject  = "tracking.>"
)

type progressFields struct {
	Progress float64 `json:"progress"`
	OnRoute  bool    `json:"on_route"`
}

// locationEvent accepts both the flat RabbitMQ body and the NATS envelope,
// which nests the processed location.
type locationEvent struct {
	EventID  string          `json:"event_id"`
	RiderID  string          `json:"rider_id"`
	OrderID  string          `json:"order_id"`
	Location *progressFields `json:"location"`
	progressFields
}

func main() {
	config.InitLogging("[listener]")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	switch cfg.BroadcastBackend {
	case config.BroadcastNATS:
		nc, err := config.NewNATS(cfg, "courier-event-listener")
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer func() { _ = nc.Drain() }()

		if _, err := nc.Subscribe(natsSubject, func(msg *nats.Msg) {
			printEvent(msg.Subject, msg.Data)
		}); err != nil {
			log.Fatalf("subscribe: %v", err)
		}
		log.Printf("subscribed to '%s', waiting for rider locations...", natsSubject)
	case config.BroadcastRabbitMQ:
		conn, err := config.NewRabbitMQ(cfg)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer func() { _ = conn.Close() }()

		msgs, closeCh := consumeRabbitMQ(conn)
		defer func() { _ = closeCh() }()

		go func() {
			for msg := range msgs {
				printEvent(msg.RoutingKey, msg.Body)
			}
		}()
		log.Printf("consuming from queue '%s', waiting for rider locations...", queueName)
	default:
		log.Fatalf("broadcast backend %q has nothing to listen to", cfg.BroadcastBackend)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down")
}

func consumeRabbitMQ(conn *amqp.Connection) (<-chan amqp.Delivery, func() error) {
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbitmq channel: %v", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		log.Fatalf("declare exchange: %v", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Fatalf("declare queue: %v", err)
	}

	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		log.Fatalf("bind queue: %v", err)
	}

	msgs, err := ch.Consume(queueName, "", true, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}
	return msgs, ch.Close
}

func printEvent(source string, body []byte) {
	var ev locationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Printf("invalid event on %s: %v", source, err)
		return
	}
	p := ev.progressFields
	if ev.Location != nil {
		p = *ev.Location
	}
	status := "off-route"
	if p.OnRoute {
		status = fmt.Sprintf("%.0f%%", p.Progress*100)
	}
	fmt.Printf("[%s/%s] %s %s\n", ev.OrderID, ev.RiderID, status, string(body))
}
