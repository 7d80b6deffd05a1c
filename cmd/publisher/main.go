package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/nandanugg/courier-tracking/config"
	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
)

// Short ride through central Jakarta.
const defaultRoute = "~s{d@_hckSnFwGrNoFrN_DvQcLbLcQ"

type coordinateMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type locationMessage struct {
	RiderID    string             `json:"rider_id"`
	OrderID    string             `json:"order_id"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Speed      float64            `json:"speed"`
	Accuracy   float64            `json:"accuracy"`
	Timestamp  int64              `json:"timestamp"`
	Restaurant *coordinateMessage `json:"restaurant,omitempty"`
	Customer   *coordinateMessage `json:"customer,omitempty"`
}

type courier struct {
	riderID   string
	orderID   string
	speedKmh  float64
	travelled float64
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds> [riders]\n", os.Args[0])
		os.Exit(1)
	}

	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}
	riders := 3
	if len(os.Args) > 2 {
		if riders, err = strconv.Atoi(os.Args[2]); err != nil || riders <= 0 {
			fmt.Fprintf(os.Stderr, "error: riders must be a positive integer\n")
			os.Exit(1)
		}
	}

	config.InitLogging("[publisher]")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	encoded := os.Getenv("ROUTE_POLYLINE")
	if encoded == "" {
		encoded = defaultRoute
	}
	route := geo.DecodePolyline(encoded)
	if len(route) < 2 {
		log.Fatalf("route polyline needs at least 2 points, got %d", len(route))
	}
	cum := cumulative(route)

	client, err := config.NewMQTTWithClientID(cfg, "courier-mock-publisher")
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer client.Disconnect(250)

	couriers := make([]*courier, riders)
	for i := range couriers {
		couriers[i] = &courier{
			riderID:  fmt.Sprintf("R%03d", i+1),
			orderID:  fmt.Sprintf("O%05d", rand.Intn(100000)),
			speedKmh: 15 + rand.Float64()*20,
		}
	}

	restaurant := &coordinateMessage{Latitude: route[0].Lat, Longitude: route[0].Lng}
	customer := &coordinateMessage{Latitude: route[len(route)-1].Lat, Longitude: route[len(route)-1].Lng}

	log.Printf("connected to %s, %d riders over %.0fm route, publishing every %ds...",
		cfg.MQTTBroker, riders, cum[len(cum)-1], intervalSec)

	interval := time.Duration(intervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		for _, c := range couriers {
			c.travelled += c.speedKmh / 3.6 * interval.Seconds()
			if c.travelled > cum[len(cum)-1] {
				c.travelled = 0
				c.orderID = fmt.Sprintf("O%05d", rand.Intn(100000))
			}

			pos := pointAt(route, cum, c.travelled)
			msg := locationMessage{
				RiderID: c.riderID,
				OrderID: c.orderID,
				// ~10m of GPS jitter
				Latitude:   pos.Lat + (rand.Float64()-0.5)*0.0002,
				Longitude:  pos.Lng + (rand.Float64()-0.5)*0.0002,
				Speed:      c.speedKmh + (rand.Float64()-0.5)*4,
				Accuracy:   5 + rand.Float64()*20,
				Timestamp:  time.Now().Unix(),
				Restaurant: restaurant,
				Customer:   customer,
			}

			payload, _ := json.Marshal(msg)
			topic := fmt.Sprintf("/delivery/rider/%s/location", c.riderID)

			token := client.Publish(topic, 1, false, payload)
			token.Wait()

			log.Printf("published to %s: %s", topic, payload)
		}
	}
}

func cumulative(points []domain.Coordinate) []float64 {
	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + geo.DistanceMeters(points[i-1], points[i])
	}
	return cum
}

// pointAt interpolates the position d meters along the route.
func pointAt(points []domain.Coordinate, cum []float64, d float64) domain.Coordinate {
	for i := 1; i < len(points); i++ {
		if d > cum[i] {
			continue
		}
		seg := cum[i] - cum[i-1]
		if seg == 0 {
			return points[i]
		}
		f := (d - cum[i-1]) / seg
		return domain.Coordinate{
			Lat: points[i-1].Lat + (points[i].Lat-points[i-1].Lat)*f,
			Lng: points[i-1].Lng + (points[i].Lng-points[i-1].Lng)*f,
		}
	}
	return points[len(points)-1]
}
