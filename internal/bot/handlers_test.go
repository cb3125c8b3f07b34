package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/note"
	"slacknotes/internal/slack"
)

type postedMessage struct {
	channel string
	text    string
}

type fakeGateway struct {
	mu        sync.Mutex
	posted    []postedMessage
	responses []string
	channels  map[string]*slack.Channel

	postErr    error
	infoErr    error
	respondErr error
}

func (g *fakeGateway) PostMessage(_ context.Context, channelID, text string) (*slack.MessageReceipt, error) {
	if g.postErr != nil {
		return nil, g.postErr
	}
	g.mu.Lock()
	g.posted = append(g.posted, postedMessage{channel: channelID, text: text})
	g.mu.Unlock()
	return &slack.MessageReceipt{Channel: channelID, TS: "123.456"}, nil
}

func (g *fakeGateway) ConversationsInfo(_ context.Context, channelID string) (*slack.Channel, error) {
	if g.infoErr != nil {
		return nil, g.infoErr
	}
	ch, ok := g.channels[channelID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSlackAPIFailure, "channel_not_found")
	}
	return ch, nil
}

func (g *fakeGateway) RespondToCommand(_ context.Context, _, text string) error {
	if g.respondErr != nil {
		return g.respondErr
	}
	g.mu.Lock()
	g.responses = append(g.responses, text)
	g.mu.Unlock()
	return nil
}

type failingNoteService struct {
	err error
}

func (f *failingNoteService) Save(context.Context, note.SaveRequest) (*note.Note, error) {
	return nil, f.err
}

func (f *failingNoteService) List(context.Context, ...note.ListOption) ([]*note.Note, error) {
	return nil, f.err
}

func commandEnvelope(command, text string) event.Envelope {
	return event.FromSlashCommand(slack.SlashCommand{
		Command:     command,
		Text:        text,
		UserID:      "U123",
		UserName:    "alice",
		ChannelID:   "C456",
		ResponseURL: "https://hooks.slack.test/commands/T1/123",
	})
}

func TestEchoHandlerRepliesInChannel(t *testing.T) {
	gateway := &fakeGateway{}
	handler := NewEchoHandler(gateway)

	env := event.Envelope{
		ID:      "ev-1",
		Kind:    event.KindMessage,
		Message: &slack.InnerEvent{Type: "message", User: "U123", Channel: "C456", Text: "hello world"},
	}
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(gateway.posted) != 1 {
		t.Fatalf("expected 1 post, got %d", len(gateway.posted))
	}
	if gateway.posted[0].channel != "C456" {
		t.Fatalf("posted to wrong channel: %s", gateway.posted[0].channel)
	}
	want := "✅ Message received! You said: 'hello world'"
	if gateway.posted[0].text != want {
		t.Fatalf("reply = %q, want %q", gateway.posted[0].text, want)
	}
}

func TestMentionHandlerStripsMentionToken(t *testing.T) {
	gateway := &fakeGateway{}
	handler := NewMentionHandler(gateway)

	env := event.Envelope{
		ID:      "ev-1",
		Kind:    event.KindMention,
		Message: &slack.InnerEvent{Type: "app_mention", User: "U123", Channel: "C456", Text: "<@UBOT>   what's up"},
	}
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := "👋 Hi there! I saw you mentioned me. Your message: 'what's up'"
	if gateway.posted[0].text != want {
		t.Fatalf("reply = %q, want %q", gateway.posted[0].text, want)
	}
}

func TestTakeNotesSavesAndConfirms(t *testing.T) {
	gateway := &fakeGateway{channels: map[string]*slack.Channel{
		"C456": {ID: "C456", Name: "general"},
	}}
	store := note.NewMemoryStore()
	handler := NewTakeNotesHandler(gateway, note.NewService(store))

	env := commandEnvelope(CommandTakeNotes, "  remember the demo  ")
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	saved, err := store.List(context.Background(), note.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 saved note, got %d", len(saved))
	}
	if saved[0].Text != "remember the demo" {
		t.Fatalf("saved text = %q", saved[0].Text)
	}
	if saved[0].ChannelName != "general" {
		t.Fatalf("saved channel name = %q", saved[0].ChannelName)
	}

	if len(gateway.responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(gateway.responses))
	}
	reply := gateway.responses[0]
	for _, fragment := range []string{
		"✅ Note saved successfully!",
		"📝 Note ID: 1",
		"👤 User: alice",
		"📄 Note: \"remember the demo\"",
		"🕐 Time: ",
		"📍 Channel: #general",
	} {
		if !strings.Contains(reply, fragment) {
			t.Fatalf("confirmation missing %q:\n%s", fragment, reply)
		}
	}
}

func TestTakeNotesEmptyTextShowsUsage(t *testing.T) {
	gateway := &fakeGateway{}
	store := note.NewMemoryStore()
	handler := NewTakeNotesHandler(gateway, note.NewService(store))

	env := commandEnvelope(CommandTakeNotes, "   ")
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(gateway.responses) != 1 || gateway.responses[0] != usageTakeNotes {
		t.Fatalf("unexpected responses: %v", gateway.responses)
	}
	saved, _ := store.List(context.Background(), note.ListOptions{})
	if len(saved) != 0 {
		t.Fatal("empty command must not save a note")
	}
}

func TestTakeNotesSurvivesChannelLookupFailure(t *testing.T) {
	gateway := &fakeGateway{infoErr: apperrors.New(apperrors.CodeSlackAPIFailure, "missing_scope")}
	store := note.NewMemoryStore()
	handler := NewTakeNotesHandler(gateway, note.NewService(store))

	env := commandEnvelope(CommandTakeNotes, "note without channel name")
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	saved, _ := store.List(context.Background(), note.ListOptions{})
	if len(saved) != 1 || saved[0].ChannelName != "" {
		t.Fatalf("expected note without channel name, got %+v", saved)
	}
	if strings.Contains(gateway.responses[0], "📍 Channel:") {
		t.Fatalf("confirmation should omit the channel line:\n%s", gateway.responses[0])
	}
}

func TestTakeNotesPropagatesSaveFailure(t *testing.T) {
	gateway := &fakeGateway{}
	svc := &failingNoteService{err: apperrors.New(apperrors.CodeStorageFailure, "mysql gone")}
	handler := NewTakeNotesHandler(gateway, svc)

	env := commandEnvelope(CommandTakeNotes, "doomed note")
	err := handler.Handle(context.Background(), env)
	if err == nil {
		t.Fatal("expected save failure to surface")
	}
	if apperrors.CodeOf(err) != apperrors.CodeStorageFailure {
		t.Fatalf("unexpected code: %s", apperrors.CodeOf(err))
	}
	if len(gateway.responses) != 0 {
		t.Fatalf("no response should be sent on failure, got %v", gateway.responses)
	}
}

func TestMyNotesListsRecentNotes(t *testing.T) {
	gateway := &fakeGateway{}
	store := note.NewMemoryStore()
	handler := NewMyNotesHandler(gateway, note.NewService(store))
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 9, 26, 0, 0, time.Local)
	seed := []*note.Note{
		{UserID: "U123", Username: "alice", Text: "first note", ChannelName: "general", CreatedAt: base},
		{UserID: "U123", Username: "alice", Text: "second note", CreatedAt: base.Add(time.Minute)},
		{UserID: "U123", Username: "alice", Text: "third note", ChannelName: "general", CreatedAt: base.Add(2 * time.Minute)},
		{UserID: "U999", Username: "bob", Text: "not mine", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, n := range seed {
		if err := store.Save(ctx, n); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	env := commandEnvelope(CommandMyNotes, "")
	if err := handler.Handle(ctx, env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(gateway.responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(gateway.responses))
	}
	reply := gateway.responses[0]

	if !strings.HasPrefix(reply, "📚 Your last 3 notes:\n\n") {
		t.Fatalf("unexpected header:\n%s", reply)
	}
	if strings.Contains(reply, "not mine") {
		t.Fatal("listing leaked another user's note")
	}
	wantLine := "**#3** - 03/14 09:28 (#general)\nthird note\n\n"
	if !strings.Contains(reply, wantLine) {
		t.Fatalf("missing line %q in:\n%s", wantLine, reply)
	}
	// Newest first.
	if strings.Index(reply, "third note") > strings.Index(reply, "first note") {
		t.Fatalf("notes out of order:\n%s", reply)
	}
	wantBare := "**#2** - 03/14 09:27\nsecond note\n\n"
	if !strings.Contains(reply, wantBare) {
		t.Fatalf("missing channel-less line %q in:\n%s", wantBare, reply)
	}
}

func TestMyNotesHonorsLimitArgument(t *testing.T) {
	gateway := &fakeGateway{}
	store := note.NewMemoryStore()
	handler := NewMyNotesHandler(gateway, note.NewService(store))
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)
	for i := 0; i < 7; i++ {
		n := &note.Note{UserID: "U123", Username: "alice", Text: "note", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(ctx, n); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := handler.Handle(ctx, commandEnvelope(CommandMyNotes, "2")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.HasPrefix(gateway.responses[0], "📚 Your last 2 notes:") {
		t.Fatalf("limit 2 not honored:\n%s", gateway.responses[0])
	}

	// Garbage falls back to the default of 5.
	if err := handler.Handle(ctx, commandEnvelope(CommandMyNotes, "lots")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.HasPrefix(gateway.responses[1], "📚 Your last 5 notes:") {
		t.Fatalf("fallback limit not honored:\n%s", gateway.responses[1])
	}
}

func TestMyNotesEmptyResult(t *testing.T) {
	gateway := &fakeGateway{}
	handler := NewMyNotesHandler(gateway, note.NewService(note.NewMemoryStore()))

	if err := handler.Handle(context.Background(), commandEnvelope(CommandMyNotes, "")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := "📝 No notes found for alice"
	if gateway.responses[0] != want {
		t.Fatalf("reply = %q, want %q", gateway.responses[0], want)
	}
}

func TestMyNotesZeroLimitSkipsQuery(t *testing.T) {
	gateway := &fakeGateway{}
	svc := &failingNoteService{err: apperrors.New(apperrors.CodeStorageFailure, "must not be called")}
	handler := NewMyNotesHandler(gateway, svc)

	if err := handler.Handle(context.Background(), commandEnvelope(CommandMyNotes, "0")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := "📝 No notes found for alice"
	if gateway.responses[0] != want {
		t.Fatalf("reply = %q, want %q", gateway.responses[0], want)
	}
}

func TestMyNotesPropagatesListFailure(t *testing.T) {
	gateway := &fakeGateway{}
	svc := &failingNoteService{err: apperrors.New(apperrors.CodeStorageFailure, "mysql gone")}
	handler := NewMyNotesHandler(gateway, svc)

	err := handler.Handle(context.Background(), commandEnvelope(CommandMyNotes, "5"))
	if err == nil {
		t.Fatal("expected list failure to surface")
	}
	if len(gateway.responses) != 0 {
		t.Fatalf("no response should be sent on failure, got %v", gateway.responses)
	}
}

func TestMyNotesDefaultsUnknownUser(t *testing.T) {
	gateway := &fakeGateway{}
	handler := NewMyNotesHandler(gateway, note.NewService(note.NewMemoryStore()))

	env := event.FromSlashCommand(slack.SlashCommand{
		Command:     CommandMyNotes,
		UserID:      "U123",
		ResponseURL: "https://hooks.slack.test/commands/T1/123",
	})
	if err := handler.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gateway.responses[0] != "📝 No notes found for Unknown" {
		t.Fatalf("unexpected reply: %q", gateway.responses[0])
	}
}
