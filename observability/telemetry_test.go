package observability

import (
	"carelink/domain/event"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTelemetry_Consume(t *testing.T) {
	req := require.New(t)
	telemetry := NewTelemetry(testLogger(), time.Minute)

	telemetry.Consume(event.MessageReceived{SubscriptionID: "sub", Conversation: "c1"})
	telemetry.Consume(event.MessageReceived{SubscriptionID: "sub", Conversation: "c1"})
	telemetry.Consume(event.SubscriptionOpened{SubscriptionID: "sub", Conversation: "c1"})
	telemetry.Consume(event.ChannelFault{SubscriptionID: "sub", Conversation: "c1"})
	telemetry.IncrDroppedStale()
	telemetry.IncrRefresh()
	telemetry.IncrSendFailed()

	telemetry.updateStats()
	snap := telemetry.GetLatest()

	req.Equal(uint64(2), snap.EventsReceived)
	req.Equal(uint64(1), snap.Subscriptions)
	req.Equal(uint64(1), snap.ChannelFaults)
	req.Equal(uint64(1), snap.EventsDropped)
	req.Equal(uint64(1), snap.Refreshes)
	req.Equal(uint64(1), snap.SendsFailed)
}
