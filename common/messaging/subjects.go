package messaging

import "strings"

// Subject layout for the Slack connector: {domain}.{resource}.{id}
const (
	// DefaultBlockSubjectPrefix is the prefix for per-subscriber delivery
	// subjects. A subscriber with block id B listens on slack.blocks.B.
	DefaultBlockSubjectPrefix = "slack.blocks"

	// SubjectDispatchFailed carries envelopes that could not be delivered.
	SubjectDispatchFailed = "slack.dlq.dispatch"

	// SubjectDLQWildcard matches every dead-letter subject.
	SubjectDLQWildcard = "slack.dlq.>"

	// SubjectHealthPing is used by CheckClientHealth for round-trip checks.
	SubjectHealthPing = "_HEALTH.ping"

	// Request/reply subjects served by the connector for subscribers that
	// create interactive artifacts.
	SubjectAPIPostMessage = "slack.api.post_message"
	SubjectAPIOpenModal   = "slack.api.open_modal"
	SubjectAPIUpdateModal = "slack.api.update_modal"

	// QueueAPI is the queue group shared by connector replicas serving the
	// request/reply subjects.
	QueueAPI = "slack-connector-api"
)

// Headers attached to every dispatched envelope.
const (
	HeaderBlockID            = "Slack-Block-Id"
	HeaderTeamID             = "Slack-Team-Id"
	HeaderRouteKind          = "Slack-Route-Kind"
	HeaderSubjectID          = "Slack-Subject-Id"
	HeaderOriginatingRequest = "Slack-Originating-Request-Id"
	HeaderDedupKey           = "Slack-Dedup-Key"
	HeaderEnvelopeID         = "Slack-Envelope-Id"
	HeaderDispatchError      = "Slack-Dispatch-Error"
	HeaderContentType        = "Content-Type"
	ContentTypeEnvelopeJSON  = "application/vnd.slack-connector.envelope+json"
)

// BlockSubject returns the delivery subject for a subscriber block id.
// Characters that are reserved in NATS subjects are replaced with '_'.
func BlockSubject(prefix, blockID string) string {
	if prefix == "" {
		prefix = DefaultBlockSubjectPrefix
	}
	return prefix + "." + SanitizeToken(blockID)
}

// BlockQueue returns the queue group shared by all replicas of one subscriber.
func BlockQueue(blockID string) string {
	return "block-" + SanitizeToken(blockID)
}

// SanitizeToken makes s usable as a single NATS subject token.
func SanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
