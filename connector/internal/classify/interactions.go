package classify

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/slack-go/slack"
)

// Anchor says which Slack artifact an interaction belongs to.
type Anchor string

const (
	AnchorMessage Anchor = "message"
	AnchorView    Anchor = "view"
)

// Interaction is a classified interactivity payload.
type Interaction struct {
	Type      string
	Anchor    Anchor
	SubjectID string

	TeamID    string
	ChannelID string
	UserID    string
	TriggerID string
	ActionTS  string

	Callback *slack.InteractionCallback
	Raw      json.RawMessage
}

// Terminal reports whether the interaction ends the artifact's life, after
// which its correlation record is no longer needed.
func (i *Interaction) Terminal() bool {
	return i.Type == TypeViewSubmission || i.Type == TypeViewClosed
}

// ExtractFormPayload returns the JSON carried in the payload field of an
// application/x-www-form-urlencoded interactivity body.
func ExtractFormPayload(body []byte) ([]byte, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload := values.Get("payload")
	if payload == "" {
		return nil, fmt.Errorf("%w: missing payload field", ErrMalformed)
	}
	return []byte(payload), nil
}

// ParseInteraction classifies an interactivity payload and derives its
// subject id. Unsupported types return ErrUnsupported with Type set.
func ParseInteraction(payload []byte) (*Interaction, error) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	in := &Interaction{
		Type:      string(cb.Type),
		TeamID:    cb.Team.ID,
		ChannelID: firstNonEmpty(cb.Container.ChannelID, cb.Channel.ID),
		UserID:    cb.User.ID,
		TriggerID: cb.TriggerID,
		ActionTS:  cb.ActionTs,
		Callback:  &cb,
		Raw:       json.RawMessage(payload),
	}

	switch in.Type {
	case TypeViewSubmission, TypeViewClosed:
		in.Anchor = AnchorView
		in.SubjectID = firstNonEmpty(cb.View.ID, cb.Container.ViewID)

	case TypeBlockActions:
		if cb.Container.Type == string(AnchorView) {
			in.Anchor = AnchorView
			in.SubjectID = firstNonEmpty(cb.View.ID, cb.Container.ViewID)
		} else {
			in.Anchor = AnchorMessage
			in.SubjectID = messageSubject(&cb)
		}

	case TypeInteractiveMessage:
		in.Anchor = AnchorMessage
		in.SubjectID = messageSubject(&cb)

	default:
		return in, fmt.Errorf("%w: %q", ErrUnsupported, in.Type)
	}

	return in, nil
}

// messageSubject picks the first non-empty of container.message_ts,
// message.ts and the top-level message_ts.
func messageSubject(cb *slack.InteractionCallback) string {
	return firstNonEmpty(cb.Container.MessageTs, cb.Message.Timestamp, cb.MessageTs)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
