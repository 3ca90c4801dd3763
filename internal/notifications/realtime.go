package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

// RealtimePush forwards events to live customer sessions. Delivery is not guaranteed.
type RealtimePush interface {
	SendToUser(ctx context.Context, userID uuid.UUID, payload any) error
}

type redisPush struct {
	pub redis.Publisher
}

// NewRealtimePush publishes JSON payloads on the per-user realtime channel.
func NewRealtimePush(pub redis.Publisher) (RealtimePush, error) {
	if pub == nil {
		return nil, fmt.Errorf("redis publisher required")
	}
	return &redisPush{pub: pub}, nil
}

func (p *redisPush) SendToUser(ctx context.Context, userID uuid.UUID, payload any) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user id required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode realtime payload: %w", err)
	}
	if _, err := p.pub.Publish(ctx, p.pub.RealtimeUserChannel(userID.String()), body); err != nil {
		return fmt.Errorf("publish realtime payload: %w", err)
	}
	return nil
}
