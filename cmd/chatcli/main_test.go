package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/client"
	"nhanz-chat/internal/models"
)

func TestRenderAfterConversationSwitch(t *testing.T) {
	state := client.NewState(models.PublicProfile{ID: "u-me", Username: "me"})
	state.SwitchConversation("a", nil)

	msg := models.Message{ID: "m1", ConversationID: "a", SenderID: "u-bob", Text: "hi", CreatedAt: time.Now()}
	raw, err := models.NewEnvelope(models.EventReceiveMessage, msg)
	require.NoError(t, err)
	var env models.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	res := state.ApplyIncoming(msg)
	require.True(t, res.Appended)
	// another conversation opened before the event is rendered
	state.SwitchConversation("b", nil)

	assert.NotPanics(t, func() { render(state, env, res) })
}

func TestTitle(t *testing.T) {
	name := models.GeneralConversationName
	assert.Equal(t, name, title(models.Conversation{Name: &name}))
	assert.Equal(t, "me, bob", title(models.Conversation{Members: []models.PublicProfile{{Username: "me"}, {Username: "bob"}}}))
}
