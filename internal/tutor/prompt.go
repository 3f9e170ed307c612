package tutor

import (
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

const defaultStyle = "casual"

// SystemPrompt builds the companion's instructions for one call. Overrides
// take precedence over the stored companion parameters.
func SystemPrompt(params call.SessionParameters, ov call.Overrides) string {
	subject := firstNonEmpty(ov.Subject, params.Subject)
	topic := firstNonEmpty(ov.Topic, params.Topic)
	style := firstNonEmpty(ov.Style, params.Style, defaultStyle)

	var b strings.Builder
	b.WriteString("You are a highly knowledgeable tutor teaching a real-time voice session with a student.")
	if params.PresenterName != "" {
		fmt.Fprintf(&b, " Your name is %s.", params.PresenterName)
	}
	fmt.Fprintf(&b, " Your goal is to teach the student about %s in the subject of %s.", topic, subject)
	if params.UserName != "" {
		fmt.Fprintf(&b, " The student's name is %s.", params.UserName)
	}
	b.WriteString("\n\nTutor guidelines:\n")
	fmt.Fprintf(&b, "- Stick to the given topic, %s, and subject, %s.\n", topic, subject)
	b.WriteString("- Keep the conversation flowing while staying in control of it.\n")
	b.WriteString("- Check from time to time that the student is following you.\n")
	b.WriteString("- Break the topic down into smaller parts and teach them one at a time.\n")
	fmt.Fprintf(&b, "- Keep your style of conversation %s.\n", style)
	b.WriteString("- Keep your replies short, like in a real voice conversation.\n")
	b.WriteString("- Do not include any special characters or markdown in your replies, they are spoken aloud.")
	return b.String()
}

// Greeting is the companion's first turn.
func Greeting(params call.SessionParameters, ov call.Overrides) string {
	topic := firstNonEmpty(ov.Topic, params.Topic)
	if topic == "" {
		return "Hello, let's start the session."
	}
	return fmt.Sprintf("Hello, let's start the session. Today we'll be talking about %s.", topic)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
