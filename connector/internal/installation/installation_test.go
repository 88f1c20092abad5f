package installation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Installation{}.Validate(), ErrMissingSigningSecret)
	assert.ErrorIs(t, Installation{SigningSecret: "  "}.Validate(), ErrMissingSigningSecret)
	assert.NoError(t, Installation{SigningSecret: "s3cret"}.Validate())
}

func TestIsBotIdentity(t *testing.T) {
	inst := Installation{BotUserID: "U0BOT", BotID: "B0BOT"}

	tests := []struct {
		name   string
		userID string
		botID  string
		want   bool
	}{
		{name: "bot user", userID: "U0BOT", want: true},
		{name: "bot id", botID: "B0BOT", want: true},
		{name: "human", userID: "U123", want: false},
		{name: "other bot", botID: "B999", want: false},
		{name: "empty", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inst.IsBotIdentity(tt.userID, tt.botID))
		})
	}

	assert.False(t, Installation{}.IsBotIdentity("", ""))
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "T123", Installation{TeamID: "T123"}.Namespace())
	assert.Equal(t, "default", Installation{}.Namespace())
}

func TestCallbackURL(t *testing.T) {
	inst := Installation{CallbackBaseURL: "https://hooks.example.com/"}
	assert.Equal(t, "https://hooks.example.com/slack/events", inst.CallbackURL("/slack/events"))
	assert.Equal(t, "https://hooks.example.com", inst.CallbackURL(""))
}

func TestStaticProvider(t *testing.T) {
	p := NewStatic(Installation{TeamID: "T1"})
	inst, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", inst.TeamID)

	p.Update(Installation{TeamID: "T2", BotUserID: "U0BOT"})
	inst, err = p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U0BOT", inst.BotUserID)
}
