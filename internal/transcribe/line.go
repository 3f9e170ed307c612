package transcribe

import (
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

// Line is one labelled transcript entry for export.
type Line struct {
	Role    call.Role
	Speaker string
	Content string
}

// Lines converts a newest-first transcript into chronological lines. The
// speaker labels come from the companion and user names.
func Lines(entries []call.TranscriptEntry, tutor, user string) []Line {
	lines := make([]Line, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		lines = append(lines, Line{
			Role:    e.Role,
			Speaker: SpeakerLabel(e.Role, tutor, user),
			Content: e.Content,
		})
	}
	return lines
}

func SpeakerLabel(role call.Role, tutor, user string) string {
	switch role {
	case call.RoleAssistant:
		if tutor != "" {
			return tutor
		}
		return "Tutor"
	case call.RoleUser:
		if user != "" {
			return user
		}
		return "You"
	default:
		return string(role)
	}
}

func (l Line) FormatMarkdown() string {
	return fmt.Sprintf("**%s:** %s", l.Speaker, strings.TrimSpace(l.Content))
}
