package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"slacknotes/internal/note"
)

const (
	saveTimeLayout = "2006-01-02 15:04:05"
	noteTimeLayout = "01/02 15:04"

	// Notes longer than this are shortened in listings, ellipsis included.
	maxDisplayRunes = 100

	defaultNoteLimit = 5
	maxNoteLimit     = 20
)

const (
	usageTakeNotes  = "❌ Please provide some text to save as a note.\nUsage: `/take_notes Your note text here`"
	errSaveDatabase = "❌ Sorry, there was an error saving your note. Please check the database connection."
	errSaveGeneric  = "❌ An error occurred while saving your note. Please try again."
	errListDatabase = "❌ Error retrieving notes from database"
	errListGeneric  = "❌ An error occurred while retrieving your notes."

	errCommandGeneric = "❌ An error occurred while handling your command. Please try again."
)

func echoReply(text string) string {
	return fmt.Sprintf("✅ Message received! You said: '%s'", text)
}

func mentionReply(cleanText string) string {
	return fmt.Sprintf("👋 Hi there! I saw you mentioned me. Your message: '%s'", cleanText)
}

func noNotesReply(userName string) string {
	return fmt.Sprintf("📝 No notes found for %s", userName)
}

// cleanMention strips the leading <@UXXXX> token Slack prepends to mention
// text. Everything after the first '>' is kept; text without one passes
// through untouched.
func cleanMention(text string) string {
	if idx := strings.Index(text, ">"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

// parseNoteLimit interprets the /my_notes argument. Only a plain run of
// digits counts; anything else falls back to the default of 5. The result
// is capped at 20.
func parseNoteLimit(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !isDigits(trimmed) {
		return defaultNoteLimit
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		// digits, but too large for int
		return maxNoteLimit
	}
	if n > maxNoteLimit {
		return maxNoteLimit
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// truncateNote shortens display text to at most maxDisplayRunes characters.
// Counted in runes so multibyte notes do not get cut mid-character.
func truncateNote(text string) string {
	runes := []rune(text)
	if len(runes) <= maxDisplayRunes {
		return text
	}
	return string(runes[:maxDisplayRunes-3]) + "..."
}

func formatNoteLine(n *note.Note) string {
	channelInfo := ""
	if n.ChannelName != "" {
		channelInfo = fmt.Sprintf(" (#%s)", n.ChannelName)
	}
	return fmt.Sprintf("**#%d** - %s%s\n%s\n\n",
		n.ID,
		n.CreatedAt.In(time.Local).Format(noteTimeLayout),
		channelInfo,
		truncateNote(n.Text))
}

func formatNoteList(notes []*note.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Your last %d notes:\n\n", len(notes))
	for _, n := range notes {
		b.WriteString(formatNoteLine(n))
	}
	return b.String()
}

func saveConfirmation(n *note.Note) string {
	msg := fmt.Sprintf("✅ Note saved successfully!\n📝 Note ID: %d\n👤 User: %s\n📄 Note: \"%s\"\n🕐 Time: %s",
		n.ID,
		n.Username,
		n.Text,
		n.CreatedAt.In(time.Local).Format(saveTimeLayout))
	if n.ChannelName != "" {
		msg += fmt.Sprintf("\n📍 Channel: #%s", n.ChannelName)
	}
	return msg
}
