// Package classify turns verified Slack webhook bodies into typed values the
// router can act on. It decides what a payload is; it never decides who gets it.
package classify

import (
	"errors"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// Payload discriminants.
const (
	TypeURLVerification    = string(slackevents.URLVerification)
	TypeEventCallback      = string(slackevents.CallbackEvent)
	TypeBlockActions       = string(slack.InteractionTypeBlockActions)
	TypeInteractiveMessage = string(slack.InteractionTypeInteractionMessage)
	TypeViewSubmission     = string(slack.InteractionTypeViewSubmission)
	TypeViewClosed         = string(slack.InteractionTypeViewClosed)
)

// Inner event types the passive path understands.
const (
	EventMessage         = string(slackevents.Message)
	EventAppMention      = string(slackevents.AppMention)
	EventReactionAdded   = string(slackevents.ReactionAdded)
	EventReactionRemoved = string(slackevents.ReactionRemoved)
)

var (
	// ErrMalformed marks a body that is not valid JSON of the expected shape.
	ErrMalformed = errors.New("classify: malformed payload")

	// ErrUnsupported marks a well-formed payload the connector does not route.
	ErrUnsupported = errors.New("classify: unsupported payload type")
)
