package classify

import (
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack/slackevents"

	"github.com/telhawk-systems/slack-connector/connector/internal/registry"
)

// EventPayload is a classified Events API body.
type EventPayload struct {
	Type string

	// Challenge is set for url_verification.
	Challenge string

	// Event is set for event_callback bodies whose inner event is routable.
	Event *PassiveEvent

	TeamID  string
	EventID string
}

// PassiveEvent is the routing view of a message, mention or reaction.
type PassiveEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	Channel  string `json:"channel"`
	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text,omitempty"`

	// ItemTS and Reaction are set for reaction events; ItemTS is the
	// timestamp of the message that was reacted to.
	ItemTS   string `json:"item_ts,omitempty"`
	Reaction string `json:"reaction,omitempty"`

	EventID string          `json:"event_id,omitempty"`
	TeamID  string          `json:"team_id,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// IsThreadReply reports whether a message was posted inside a thread rather
// than starting one.
func (e *PassiveEvent) IsThreadReply() bool {
	return e.ThreadTS != "" && e.ThreadTS != e.TS
}

// Kinds maps the event onto the subscriber kinds interested in it.
func (e *PassiveEvent) Kinds() []registry.Kind {
	switch e.Type {
	case EventMessage:
		if e.IsThreadReply() {
			return []registry.Kind{registry.KindMessages, registry.KindConversationThread}
		}
		return []registry.Kind{registry.KindMessages}
	case EventAppMention:
		return []registry.Kind{registry.KindAppMention}
	case EventReactionAdded, EventReactionRemoved:
		return []registry.Kind{registry.KindReactions}
	}
	return nil
}

// DedupKey identifies the event across Slack redeliveries.
func (e *PassiveEvent) DedupKey() string {
	key := e.TeamID + ":" + e.Channel + ":" + e.TS
	if e.Type == EventReactionAdded || e.Type == EventReactionRemoved {
		key += ":" + e.Type + ":" + e.User + ":" + e.Reaction
	}
	return key
}

type envelopeHead struct {
	Type string `json:"type"`
}

type innerHead struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// ParseEvent classifies an Events API body. Unknown outer or inner types
// return ErrUnsupported together with whatever was classified so far.
func ParseEvent(body []byte) (*EventPayload, error) {
	var head envelopeHead
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeURLVerification:
		var ev slackevents.EventsAPIURLVerificationEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &EventPayload{Type: head.Type, Challenge: ev.Challenge}, nil

	case TypeEventCallback:
		var cb slackevents.EventsAPICallbackEvent
		if err := json.Unmarshal(body, &cb); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out := &EventPayload{Type: head.Type, TeamID: cb.TeamID, EventID: cb.EventID}
		if cb.InnerEvent == nil {
			return out, fmt.Errorf("%w: event_callback without event", ErrMalformed)
		}
		ev, err := parseInner(*cb.InnerEvent)
		if err != nil {
			return out, err
		}
		ev.TeamID = cb.TeamID
		ev.EventID = cb.EventID
		out.Event = ev
		return out, nil
	}

	return &EventPayload{Type: head.Type}, fmt.Errorf("%w: %q", ErrUnsupported, head.Type)
}

func parseInner(raw json.RawMessage) (*PassiveEvent, error) {
	var head innerHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case EventMessage:
		var m slackevents.MessageEvent
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		user, botID := messageAuthor(&m)
		return &PassiveEvent{
			Type:     head.Type,
			Subtype:  head.Subtype,
			Channel:  m.Channel,
			User:     user,
			BotID:    botID,
			TS:       m.TimeStamp,
			ThreadTS: m.ThreadTimeStamp,
			Text:     m.Text,
			Raw:      raw,
		}, nil

	case EventAppMention:
		var m slackevents.AppMentionEvent
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &PassiveEvent{
			Type:     head.Type,
			Channel:  m.Channel,
			User:     m.User,
			BotID:    m.BotID,
			TS:       m.TimeStamp,
			ThreadTS: m.ThreadTimeStamp,
			Text:     m.Text,
			Raw:      raw,
		}, nil

	case EventReactionAdded:
		var r slackevents.ReactionAddedEvent
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return reactionEvent(head.Type, r.User, r.Reaction, r.Item.Channel, r.Item.Timestamp, r.EventTimestamp, raw), nil

	case EventReactionRemoved:
		var r slackevents.ReactionRemovedEvent
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return reactionEvent(head.Type, r.User, r.Reaction, r.Item.Channel, r.Item.Timestamp, r.EventTimestamp, raw), nil
	}

	return nil, fmt.Errorf("%w: inner event %q", ErrUnsupported, head.Type)
}

func reactionEvent(typ, user, reaction, channel, itemTS, eventTS string, raw json.RawMessage) *PassiveEvent {
	return &PassiveEvent{
		Type:     typ,
		Channel:  channel,
		User:     user,
		TS:       eventTS,
		ItemTS:   itemTS,
		Reaction: reaction,
		Raw:      raw,
	}
}

// messageAuthor returns who wrote the message. Edits and deletions carry the
// author only on the nested message or previous_message.
func messageAuthor(m *slackevents.MessageEvent) (user, botID string) {
	if m.User != "" || m.BotID != "" {
		return m.User, m.BotID
	}
	for _, nested := range []*slackevents.MessageEvent{m.Message, m.PreviousMessage} {
		if nested != nil && (nested.User != "" || nested.BotID != "") {
			return nested.User, nested.BotID
		}
	}
	return "", ""
}
