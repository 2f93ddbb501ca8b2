package rabbitmq

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/observability"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	var buf bytes.Buffer
	p := NewPublisher("", "chat.events", zerolog.New(&buf).Level(zerolog.DebugLevel))

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))

	err := p.Publish(context.Background(), "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"event_name":"ws_connect"`)
	assert.NoError(t, p.Close())
}
