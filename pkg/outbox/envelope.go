package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const envelopeVersion = 1

var ErrEmptyPayload = errors.New("envelope carries no data")

// ActorRef identifies who produced the event. ActorID is a user id or a fixed
// system identifier for webhook-originated changes.
type ActorRef struct {
	ActorID string `json:"actorId"`
	Role    string `json:"role,omitempty"`
	Source  string `json:"source,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. EventID equals the
// outbox row id so consumers can dedupe on it.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes without data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEmptyPayload
	}
	return env, nil
}

// DecodeData unmarshals the typed event body into dest.
func (e PayloadEnvelope) DecodeData(dest any) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}
