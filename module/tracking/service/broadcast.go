package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher"
)

type PublishMetrics interface {
	PublishResult(err error)
}

// BroadcastService pushes processed locations to order trackers.
type BroadcastService struct {
	publisher publisher.LocationPublisher
	metrics   PublishMetrics
	newID     func() string
}

func NewBroadcastService(pub publisher.LocationPublisher, metrics PublishMetrics) *BroadcastService {
	return &BroadcastService{
		publisher: pub,
		metrics:   metrics,
		newID:     uuid.NewString,
	}
}

func (s *BroadcastService) Broadcast(ctx context.Context, riderID, orderID string, loc domain.ProcessedLocation) (*domain.LocationUpdate, error) {
	update := &domain.LocationUpdate{
		EventID:  s.newID(),
		RiderID:  riderID,
		OrderID:  orderID,
		Location: loc,
	}
	err := s.publisher.PublishLocation(ctx, update)
	if s.metrics != nil {
		s.metrics.PublishResult(err)
	}
	if err != nil {
		return nil, err
	}
	return update, nil
}
