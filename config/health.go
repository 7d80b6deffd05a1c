package config

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HealthCheck reports nil when the dependency is usable.
type HealthCheck func(ctx context.Context) error

type HealthChecker struct {
	names  []string
	checks map[string]HealthCheck
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: map[string]HealthCheck{}}
}

func (h *HealthChecker) Add(name string, check HealthCheck) *HealthChecker {
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
	return h
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	for _, name := range h.names {
		if err := h.checks[name](c.Request.Context()); err != nil {
			deps[name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = gin.H{"status": "up"}
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}

func PostgresCheck(db *sql.DB) HealthCheck {
	return db.PingContext
}

func RabbitMQCheck(conn *amqp.Connection) HealthCheck {
	return func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}
}

func MQTTCheck(client mqtt.Client) HealthCheck {
	return func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}
}

func NATSCheck(nc *nats.Conn) HealthCheck {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New(nc.Status().String())
		}
		return nil
	}
}
