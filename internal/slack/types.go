package slack

import "net/url"

// apiResponse is the envelope every Web API method shares.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// AuthTestResponse identifies the authenticated bot.
type AuthTestResponse struct {
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id"`
}

// Channel is the subset of conversation fields the bot cares about.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsIM bool   `json:"is_im"`
}

// MessageReceipt confirms a posted message.
type MessageReceipt struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// EventCallback is the outer body delivered by the Events API and inside
// socket-mode events_api envelopes. Type url_verification carries only the
// challenge.
type EventCallback struct {
	Type      string     `json:"type"`
	Token     string     `json:"token"`
	TeamID    string     `json:"team_id"`
	Challenge string     `json:"challenge,omitempty"`
	EventID   string     `json:"event_id"`
	EventTime int64      `json:"event_time"`
	Event     InnerEvent `json:"event"`
}

// InnerEvent is the actual workspace event. Only message and app_mention
// reach the handlers; everything else is dropped at intake.
type InnerEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	BotID   string `json:"bot_id"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	EventTS string `json:"event_ts"`
}

// FromBot reports whether the event was authored by a bot. Those are never
// answered, otherwise the echo reply would loop forever.
func (e InnerEvent) FromBot() bool {
	return e.BotID != "" || e.Subtype == "bot_message"
}

// SlashCommand carries one slash command invocation. Socket mode delivers
// it as JSON, the Events API as a form post; the field names match both.
type SlashCommand struct {
	Command     string `json:"command"`
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	ResponseURL string `json:"response_url"`
	TriggerID   string `json:"trigger_id"`
	TeamID      string `json:"team_id"`
}

// SlashCommandFromForm decodes the Events API form encoding.
func SlashCommandFromForm(values url.Values) SlashCommand {
	return SlashCommand{
		Command:     values.Get("command"),
		Text:        values.Get("text"),
		UserID:      values.Get("user_id"),
		UserName:    values.Get("user_name"),
		ChannelID:   values.Get("channel_id"),
		ChannelName: values.Get("channel_name"),
		ResponseURL: values.Get("response_url"),
		TriggerID:   values.Get("trigger_id"),
		TeamID:      values.Get("team_id"),
	}
}
