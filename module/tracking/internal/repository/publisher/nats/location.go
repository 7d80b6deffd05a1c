package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/publisher"
)

var _ publisher.LocationPublisher = (*LocationPublisher)(nil)

const subjectPrefix = "tracking"

type conn interface {
	PublishMsg(m *nats.Msg) error
}

type LocationPublisher struct {
	nc conn
}

func NewLocationPublisher(nc *nats.Conn) *LocationPublisher {
	return &LocationPublisher{nc: nc}
}

// PublishLocation publishes on tracking.<order>.<rider> so trackers can
// subscribe per order with tracking.<order>.>.
func (p *LocationPublisher) PublishLocation(ctx context.Context, update *domain.LocationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	msg := nats.NewMsg(Subject(update.OrderID, update.RiderID))
	msg.Header.Set(nats.MsgIdHdr, update.EventID)
	msg.Data = body
	return p.nc.PublishMsg(msg)
}

func Subject(orderID, riderID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, subjectToken(orderID), subjectToken(riderID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
