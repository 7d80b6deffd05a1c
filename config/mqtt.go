package config

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func NewMQTT(cfg *Config) (mqtt.Client, error) {
	return NewMQTTWithClientID(cfg, cfg.MQTTClientID)
}

func NewMQTTWithClientID(cfg *Config, clientID string) (mqtt.Client, error) {
	client := mqtt.NewClient(mqttOptions(cfg, clientID))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// mqttOptions lets paho run message handlers concurrently. Per-rider ordering
// is kept by the pipeline's rider locks, not by the MQTT router.
func mqttOptions(cfg *Config, clientID string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		})
}
