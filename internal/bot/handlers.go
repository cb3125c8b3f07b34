package bot

import (
	"context"
	"log/slog"
	"strings"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/note"
	"slacknotes/internal/slack"
	"slacknotes/pkg/logger"
)

// Slash command names the bot answers to.
const (
	CommandTakeNotes = "/take_notes"
	CommandMyNotes   = "/my_notes"
)

// SlackGateway is the slice of the Slack client the handlers need.
type SlackGateway interface {
	PostMessage(ctx context.Context, channelID, text string) (*slack.MessageReceipt, error)
	ConversationsInfo(ctx context.Context, channelID string) (*slack.Channel, error)
	RespondToCommand(ctx context.Context, responseURL, text string) error
}

// NoteService is the slice of the note service the handlers need.
type NoteService interface {
	Save(ctx context.Context, req note.SaveRequest) (*note.Note, error)
	List(ctx context.Context, opts ...note.ListOption) ([]*note.Note, error)
}

// EchoHandler confirms every human message back into its channel.
type EchoHandler struct {
	gateway SlackGateway
}

// NewEchoHandler builds the handler for plain channel messages.
func NewEchoHandler(gateway SlackGateway) *EchoHandler {
	return &EchoHandler{gateway: gateway}
}

// Handle implements Handler.
func (h *EchoHandler) Handle(ctx context.Context, env event.Envelope) error {
	msg := env.Message
	if msg == nil {
		return apperrors.New(apperrors.CodeEventDecodeFailure, "message envelope has no payload")
	}
	_, err := h.gateway.PostMessage(ctx, msg.Channel, echoReply(msg.Text))
	return err
}

// MentionHandler greets users who @-mention the bot, echoing their message
// with the mention token stripped.
type MentionHandler struct {
	gateway SlackGateway
}

// NewMentionHandler builds the handler for app mentions.
func NewMentionHandler(gateway SlackGateway) *MentionHandler {
	return &MentionHandler{gateway: gateway}
}

// Handle implements Handler.
func (h *MentionHandler) Handle(ctx context.Context, env event.Envelope) error {
	msg := env.Message
	if msg == nil {
		return apperrors.New(apperrors.CodeEventDecodeFailure, "mention envelope has no payload")
	}
	_, err := h.gateway.PostMessage(ctx, msg.Channel, mentionReply(cleanMention(msg.Text)))
	return err
}

// TakeNotesHandler saves the /take_notes argument as a note and confirms
// with the assigned id.
type TakeNotesHandler struct {
	gateway SlackGateway
	notes   NoteService
	logger  *slog.Logger
}

// NewTakeNotesHandler builds the /take_notes handler.
func NewTakeNotesHandler(gateway SlackGateway, notes NoteService) *TakeNotesHandler {
	return &TakeNotesHandler{
		gateway: gateway,
		notes:   notes,
		logger:  logger.Named("take_notes"),
	}
}

// Handle implements Handler.
func (h *TakeNotesHandler) Handle(ctx context.Context, env event.Envelope) error {
	cmd := env.Command
	if cmd == nil {
		return apperrors.New(apperrors.CodeEventDecodeFailure, "command envelope has no payload")
	}

	userName := cmd.UserName
	if userName == "" {
		userName = "Unknown"
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return h.gateway.RespondToCommand(ctx, cmd.ResponseURL, usageTakeNotes)
	}

	// The slash payload's channel_name is unreliable (it reads
	// "directmessage" in DMs), so resolve the real name and fall back to
	// none when the lookup fails.
	channelName := ""
	if cmd.ChannelID != "" {
		if ch, err := h.gateway.ConversationsInfo(ctx, cmd.ChannelID); err == nil && ch != nil {
			channelName = ch.Name
		} else if err != nil {
			h.logger.Debug("channel lookup failed",
				slog.Any("error", err),
				slog.String("channel_id", cmd.ChannelID))
		}
	}

	saved, err := h.notes.Save(ctx, note.SaveRequest{
		UserID:      cmd.UserID,
		Username:    userName,
		Text:        text,
		ChannelID:   cmd.ChannelID,
		ChannelName: channelName,
	})
	if err != nil {
		return err
	}
	return h.gateway.RespondToCommand(ctx, cmd.ResponseURL, saveConfirmation(saved))
}

// MyNotesHandler lists the caller's most recent notes.
type MyNotesHandler struct {
	gateway SlackGateway
	notes   NoteService
}

// NewMyNotesHandler builds the /my_notes handler.
func NewMyNotesHandler(gateway SlackGateway, notes NoteService) *MyNotesHandler {
	return &MyNotesHandler{gateway: gateway, notes: notes}
}

// Handle implements Handler.
func (h *MyNotesHandler) Handle(ctx context.Context, env event.Envelope) error {
	cmd := env.Command
	if cmd == nil {
		return apperrors.New(apperrors.CodeEventDecodeFailure, "command envelope has no payload")
	}

	userName := cmd.UserName
	if userName == "" {
		userName = "Unknown"
	}

	limit := parseNoteLimit(cmd.Text)
	if limit == 0 {
		// An explicit 0 selects nothing; answer like an empty result.
		return h.gateway.RespondToCommand(ctx, cmd.ResponseURL, noNotesReply(userName))
	}

	notes, err := h.notes.List(ctx, note.WithUser(cmd.UserID), note.WithLimit(limit))
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		return h.gateway.RespondToCommand(ctx, cmd.ResponseURL, noNotesReply(userName))
	}
	return h.gateway.RespondToCommand(ctx, cmd.ResponseURL, formatNoteList(notes))
}
