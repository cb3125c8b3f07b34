package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "slacknotes/internal/errors"
)

type captureNotifier struct {
	channel Channel
	events  []Event
	fail    error
}

func (n *captureNotifier) Channel() Channel { return n.channel }

func (n *captureNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return n.fail
}

func testEvent() Event {
	return Event{
		Code:        xerrors.CodeRetriesExhausted,
		Message:     "handler kept failing",
		Severity:    xerrors.SeverityWarning,
		EnvelopeID:  "Ev123",
		Kind:        "slash_command",
		Attempts:    3,
		MaxAttempts: 3,
		OccurredAt:  time.Now(),
	}
}

func TestFanoutReachesAllChannels(t *testing.T) {
	a := &captureNotifier{channel: ChannelLog}
	b := &captureNotifier{channel: ChannelSlack}
	dispatcher := NewFanout(a, b, nil)

	if err := dispatcher.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestFanoutJoinsFailures(t *testing.T) {
	broken := &captureNotifier{channel: ChannelSlack, fail: errors.New("slack down")}
	healthy := &captureNotifier{channel: ChannelLog}
	dispatcher := NewFanout(broken, healthy)

	err := dispatcher.Notify(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(healthy.events) != 1 {
		t.Error("healthy channel must still receive the event")
	}
}

type fakeSender struct {
	channelID string
	content   string
}

func (f *fakeSender) Send(_ context.Context, channelID, content string) error {
	f.channelID = channelID
	f.content = content
	return nil
}

func TestSlackNotifierFormatsEvent(t *testing.T) {
	sender := &fakeSender{}
	notifier := &SlackNotifier{Sender: sender, ChannelID: "C-alerts"}

	if err := notifier.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sender.channelID != "C-alerts" {
		t.Errorf("channel = %s", sender.channelID)
	}
	for _, want := range []string{"RETRIES_EXHAUSTED", "handler kept failing", "3/3"} {
		if !strings.Contains(sender.content, want) {
			t.Errorf("content %q missing %q", sender.content, want)
		}
	}
}

func TestSlackNotifierUnconfiguredIsNoop(t *testing.T) {
	notifier := &SlackNotifier{}
	if err := notifier.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("unconfigured notifier must not fail: %v", err)
	}
}
