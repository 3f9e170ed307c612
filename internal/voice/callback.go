package voice

import (
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/transcribe"
)

// callback translates Deepgram live events for one stream into call events.
type callback struct {
	client *Client
	stream *stream
}

func (cb *callback) Open(*api.OpenResponse) error {
	cb.client.logger.Info("connected to Deepgram")
	return nil
}

func (cb *callback) Message(mr *api.MessageResponse) error {
	if cb.stream.ended.Load() || len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	sentence := strings.TrimSpace(alt.Transcript)
	if sentence == "" {
		if mr.SpeechFinal {
			cb.client.flush(cb.stream)
		}
		return nil
	}

	if !mr.IsFinal {
		cb.client.emit(call.Transcript{Role: call.RoleUser, Text: sentence, Final: false})
		return nil
	}

	words := make([]transcribe.Word, 0, len(alt.Words))
	for _, word := range alt.Words {
		words = append(words, transcribe.Word{
			Speaker:        word.Speaker,
			PunctuatedWord: word.PunctuatedWord,
			Start:          word.Start,
			End:            word.End,
		})
	}

	cb.stream.mu.Lock()
	if len(words) > 0 {
		cb.stream.buffer.AddWords(words)
	} else {
		cb.stream.buffer.AddText(sentence)
	}
	cb.stream.mu.Unlock()

	if mr.SpeechFinal {
		cb.client.flush(cb.stream)
	}
	return nil
}

func (cb *callback) Metadata(*api.MetadataResponse) error { return nil }

func (cb *callback) SpeechStarted(*api.SpeechStartedResponse) error {
	if cb.stream.ended.Load() {
		return nil
	}
	cb.client.emit(call.SpeechStarted{})
	return nil
}

func (cb *callback) UtteranceEnd(*api.UtteranceEndResponse) error {
	if cb.stream.ended.Load() {
		return nil
	}
	cb.client.flush(cb.stream)
	cb.client.emit(call.SpeechEnded{})
	return nil
}

func (cb *callback) Close(*api.CloseResponse) error {
	cb.client.logger.Info("disconnected from Deepgram")
	cb.client.finish(cb.stream)
	return nil
}

func (cb *callback) Error(er *api.ErrorResponse) error {
	if cb.stream.ended.Load() {
		return nil
	}
	failure := call.Failure{
		Kind:    classify(er.ErrCode, er.Description),
		Message: strings.TrimSpace(er.ErrCode + ": " + er.Description),
	}
	cb.client.logger.Warn("deepgram error", "code", er.ErrCode, "description", er.Description, "kind", string(failure.Kind))
	cb.client.emit(failure)
	return nil
}

func (cb *callback) UnhandledEvent([]byte) error { return nil }

// classify maps Deepgram error codes to call error kinds. Unrecognized
// errors are left unknown so the controller can match on the message.
func classify(code, description string) call.ErrorKind {
	text := strings.ToLower(code + " " + description)
	switch {
	case strings.Contains(text, "net0001"), strings.Contains(text, "timeout waiting for data"):
		return call.ErrorKindMeetingEnded
	case strings.Contains(text, "websocket"), strings.Contains(text, "net0000"):
		return call.ErrorKindTransport
	case strings.Contains(text, "unauthorized"), strings.Contains(text, "401"):
		return call.ErrorKindEjected
	case strings.Contains(text, "dial"), strings.Contains(text, "connection"):
		return call.ErrorKindConnection
	case strings.Contains(text, "data-0000"), strings.Contains(text, "invalid"):
		return call.ErrorKindOther
	default:
		return call.ErrorKindUnknown
	}
}
