package simulator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Kind names one shape of simulated traffic.
type Kind string

const (
	KindMessage         Kind = "message"
	KindThreadReply     Kind = "thread_reply"
	KindAppMention      Kind = "app_mention"
	KindReactionAdded   Kind = "reaction_added"
	KindReactionRemoved Kind = "reaction_removed"
	KindBotMessage      Kind = "bot_message"
	KindBlockActions    Kind = "block_actions"
	KindViewSubmission  Kind = "view_submission"
	KindViewClosed      Kind = "view_closed"
	KindURLVerification Kind = "url_verification"
)

var allKinds = []Kind{
	KindMessage, KindThreadReply, KindAppMention, KindReactionAdded,
	KindReactionRemoved, KindBotMessage, KindBlockActions, KindViewSubmission,
	KindViewClosed, KindURLVerification,
}

func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Interactive reports whether k is sent to the interactivity endpoint.
func (k Kind) Interactive() bool {
	return k == KindBlockActions || k == KindViewSubmission || k == KindViewClosed
}

func KindNames() []string {
	names := make([]string, len(allKinds))
	for i, k := range allKinds {
		names[i] = string(k)
	}
	return names
}

// Payload is one generated request body.
type Payload struct {
	Kind      Kind
	Body      []byte
	Channel   string
	SubjectID string
}

type messageRef struct {
	channel string
	ts      string
}

// Generator produces Slack-shaped bodies. Thread replies, reactions and
// block actions point at messages generated earlier in the same run.
type Generator struct {
	faker    *gofakeit.Faker
	teamID   string
	defaults DefaultsConfig
	now      func() time.Time

	seq    int
	recent []messageRef
}

const recentLimit = 32

// NewGenerator seeds gofakeit from d.Seed; zero picks a random seed.
func NewGenerator(teamID string, d DefaultsConfig) *Generator {
	if teamID == "" {
		teamID = "T0SIMTEAM"
	}
	return &Generator{
		faker:    gofakeit.New(d.Seed),
		teamID:   teamID,
		defaults: d,
		now:      time.Now,
	}
}

// Next generates a body of kind k.
func (g *Generator) Next(k Kind) (Payload, error) {
	switch k {
	case KindMessage:
		return g.message(), nil
	case KindThreadReply:
		return g.threadReply(), nil
	case KindAppMention:
		return g.appMention(), nil
	case KindReactionAdded, KindReactionRemoved:
		return g.reaction(k), nil
	case KindBotMessage:
		return g.botMessage(), nil
	case KindBlockActions:
		return g.blockActions(), nil
	case KindViewSubmission, KindViewClosed:
		return g.viewPayload(k), nil
	case KindURLVerification:
		return g.urlVerification(), nil
	}
	return Payload{}, fmt.Errorf("unknown kind %q", k)
}

// Pick chooses one of kinds at random.
func (g *Generator) Pick(kinds []string) Kind {
	return Kind(g.faker.RandomString(kinds))
}

func (g *Generator) message() Payload {
	ch, ts := g.channel(), g.ts()
	g.remember(ch, ts)
	return g.callback(KindMessage, ch, ts, map[string]interface{}{
		"type":         "message",
		"channel":      ch,
		"channel_type": "channel",
		"user":         g.user(),
		"text":         g.faker.Sentence(g.faker.Number(4, 14)),
		"ts":           ts,
		"event_ts":     ts,
	})
}

func (g *Generator) threadReply() Payload {
	root, ok := g.lastMessage()
	if !ok {
		root = messageRef{channel: g.channel(), ts: g.ts()}
	}
	ts := g.ts()
	return g.callback(KindThreadReply, root.channel, ts, map[string]interface{}{
		"type":         "message",
		"channel":      root.channel,
		"channel_type": "channel",
		"user":         g.user(),
		"text":         g.faker.HackerPhrase(),
		"ts":           ts,
		"thread_ts":    root.ts,
		"event_ts":     ts,
	})
}

func (g *Generator) appMention() Payload {
	ch, ts := g.channel(), g.ts()
	g.remember(ch, ts)
	return g.callback(KindAppMention, ch, ts, map[string]interface{}{
		"type":     "app_mention",
		"channel":  ch,
		"user":     g.user(),
		"text":     fmt.Sprintf("<@%s> %s", g.defaults.BotUserID, g.faker.Sentence(6)),
		"ts":       ts,
		"event_ts": ts,
	})
}

func (g *Generator) reaction(k Kind) Payload {
	target, ok := g.lastMessage()
	if !ok {
		target = messageRef{channel: g.channel(), ts: g.ts()}
	}
	eventTS := g.ts()
	return g.callback(k, target.channel, target.ts, map[string]interface{}{
		"type":      string(k),
		"user":      g.user(),
		"reaction":  g.faker.RandomString([]string{"eyes", "white_check_mark", "thumbsup", "rocket", "x"}),
		"item_user": g.user(),
		"item": map[string]interface{}{
			"type":    "message",
			"channel": target.channel,
			"ts":      target.ts,
		},
		"event_ts": eventTS,
	})
}

func (g *Generator) botMessage() Payload {
	ch, ts := g.channel(), g.ts()
	return g.callback(KindBotMessage, ch, ts, map[string]interface{}{
		"type":     "message",
		"subtype":  "bot_message",
		"channel":  ch,
		"bot_id":   g.defaults.BotID,
		"text":     g.faker.Sentence(8),
		"ts":       ts,
		"event_ts": ts,
	})
}

func (g *Generator) blockActions() Payload {
	anchor := messageRef{ts: g.defaults.MessageTS}
	if anchor.ts != "" {
		anchor.channel = g.channel()
	} else if last, ok := g.lastMessage(); ok {
		anchor = last
	} else {
		anchor = messageRef{channel: g.channel(), ts: g.ts()}
	}

	user := g.user()
	actionTS := g.ts()
	return g.interaction(KindBlockActions, anchor.channel, anchor.ts, map[string]interface{}{
		"type":       "block_actions",
		"team":       map[string]interface{}{"id": g.teamID},
		"user":       map[string]interface{}{"id": user, "username": g.faker.Username()},
		"trigger_id": g.triggerID(),
		"container": map[string]interface{}{
			"type":       "message",
			"message_ts": anchor.ts,
			"channel_id": anchor.channel,
		},
		"channel": map[string]interface{}{"id": anchor.channel},
		"message": map[string]interface{}{"ts": anchor.ts, "type": "message"},
		"actions": []map[string]interface{}{{
			"type":      "button",
			"action_id": g.faker.RandomString([]string{"approve", "reject", "snooze"}),
			"block_id":  "actions-" + g.faker.Word(),
			"value":     g.faker.UUID(),
			"action_ts": actionTS,
		}},
	})
}

func (g *Generator) viewPayload(k Kind) Payload {
	viewID := g.defaults.ViewID
	if viewID == "" {
		viewID = "V" + g.faker.Numerify("##########")
	}
	return g.interaction(k, "", viewID, map[string]interface{}{
		"type":       string(k),
		"team":       map[string]interface{}{"id": g.teamID},
		"user":       map[string]interface{}{"id": g.user()},
		"trigger_id": g.triggerID(),
		"view": map[string]interface{}{
			"id":          viewID,
			"type":        "modal",
			"callback_id": "sim-" + g.faker.Word(),
			"hash":        g.faker.Numerify("##########.AbCdEf"),
			"state": map[string]interface{}{
				"values": map[string]interface{}{
					"reason": map[string]interface{}{
						"input": map[string]interface{}{"type": "plain_text_input", "value": g.faker.Sentence(5)},
					},
				},
			},
		},
	})
}

func (g *Generator) urlVerification() Payload {
	challenge := strings.ReplaceAll(g.faker.UUID(), "-", "")
	return Payload{
		Kind:      KindURLVerification,
		SubjectID: challenge,
		Body: mustJSON(map[string]interface{}{
			"token":     "Jhj5dZrVaK7ZwHHjRyZWjbDl",
			"challenge": challenge,
			"type":      "url_verification",
		}),
	}
}

func (g *Generator) callback(k Kind, channel, subject string, event map[string]interface{}) Payload {
	return Payload{
		Kind:      k,
		Channel:   channel,
		SubjectID: subject,
		Body: mustJSON(map[string]interface{}{
			"token":      "Jhj5dZrVaK7ZwHHjRyZWjbDl",
			"team_id":    g.teamID,
			"api_app_id": "A0SIMAPP",
			"type":       "event_callback",
			"event_id":   "Ev" + g.faker.Numerify("##########"),
			"event_time": g.now().Unix(),
			"event":      event,
		}),
	}
}

func (g *Generator) interaction(k Kind, channel, subject string, payload map[string]interface{}) Payload {
	return Payload{Kind: k, Channel: channel, SubjectID: subject, Body: mustJSON(payload)}
}

// ts returns a Slack timestamp unique within the run.
func (g *Generator) ts() string {
	g.seq++
	return fmt.Sprintf("%d.%06d", g.now().Unix(), g.seq%1000000)
}

func (g *Generator) channel() string {
	return g.faker.RandomString(g.defaults.Channels)
}

func (g *Generator) user() string {
	if len(g.defaults.Users) > 0 {
		return g.faker.RandomString(g.defaults.Users)
	}
	return "U" + g.faker.Numerify("#########")
}

func (g *Generator) triggerID() string {
	return g.faker.Numerify("#######.#######.") + strings.ReplaceAll(g.faker.UUID(), "-", "")[:16]
}

func (g *Generator) remember(channel, ts string) {
	g.recent = append(g.recent, messageRef{channel: channel, ts: ts})
	if len(g.recent) > recentLimit {
		g.recent = g.recent[len(g.recent)-recentLimit:]
	}
}

func (g *Generator) lastMessage() (messageRef, bool) {
	if len(g.recent) == 0 {
		return messageRef{}, false
	}
	return g.recent[len(g.recent)-1], true
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("simulator: marshal payload: %v", err))
	}
	return data
}
