// Package dispatch delivers routed Slack payloads to subscriber blocks over
// the message bus. Every block gets its own independent delivery.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/slack-connector/common/messaging"
)

// Route says how recipients were chosen.
type Route string

const (
	RoutePassive    Route = "passive"
	RouteCorrelated Route = "correlated"
)

// Envelope is the message a subscriber receives.
type Envelope struct {
	ID         string    `json:"id"`
	Route      Route     `json:"route"`
	Type       string    `json:"type"`
	TeamID     string    `json:"team_id,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	User       string    `json:"user,omitempty"`
	ReceivedAt time.Time `json:"received_at"`

	// BlockID is the recipient. Send fills it per delivery.
	BlockID string `json:"block_id,omitempty"`

	// SubjectID and OriginatingRequestID are set on correlated deliveries.
	SubjectID            string `json:"subject_id,omitempty"`
	OriginatingRequestID string `json:"originating_request_id,omitempty"`

	// DedupKey is stable across Slack redeliveries of the same event:
	// team:channel:ts for passive events, the subject id for interactions.
	DedupKey string `json:"dedup_key"`

	// RequestID is the connector's inbound request id, for log correlation.
	RequestID string `json:"request_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a fresh id and receive time.
func NewEnvelope(route Route, typ string, payload json.RawMessage) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Route:      route,
		Type:       typ,
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Headers renders the envelope's routing fields as message headers so
// subscribers can filter without decoding the body.
func (e Envelope) Headers() map[string]string {
	h := map[string]string{
		messaging.HeaderEnvelopeID:  e.ID,
		messaging.HeaderRouteKind:   string(e.Route),
		messaging.HeaderBlockID:     e.BlockID,
		messaging.HeaderDedupKey:    e.DedupKey,
		messaging.HeaderContentType: messaging.ContentTypeEnvelopeJSON,
	}
	if e.TeamID != "" {
		h[messaging.HeaderTeamID] = e.TeamID
	}
	if e.SubjectID != "" {
		h[messaging.HeaderSubjectID] = e.SubjectID
	}
	if e.OriginatingRequestID != "" {
		h[messaging.HeaderOriginatingRequest] = e.OriginatingRequestID
	}
	return h
}

// Decode parses a delivered message back into an Envelope.
func Decode(msg *messaging.Message) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
