package config

import (
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

func NewNATS(cfg *Config, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}
