package publisher

import (
	"context"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

type LocationPublisher interface {
	PublishLocation(ctx context.Context, update *domain.LocationUpdate) error
}
