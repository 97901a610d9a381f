package llm

import (
	"strings"

	"github.com/bryan-buckman/termread/internal/model"
)

// DefaultPrompt is the system prompt used when no custom prompt is chosen.
const DefaultPrompt = `You are author of the article that help me to read this article in less time but still effective and understand everything, use less jargon, explain abstract term and keep the main topic of the article, without abusing bullet point or over summarize or simply. Keep every important detail with refinement.

Preserve each section main topic and also preserve image.

Return in markdown format without explaining any else. Just pure markdown.`

// ArticlePlaceholder replaces the article system message in the displayed
// chat transcript.
const ArticlePlaceholder = "[Article included as context]"

// ChatWindow is the number of conversation turns sent per request.
const ChatWindow = 5

// Length is the requested summary size.
type Length string

const (
	LengthShort        Length = "short"
	LengthMedium       Length = "medium"
	LengthLong         Length = "long"
	LengthDetailedLong Length = "detailed long"
)

// Lengths lists the accepted summary lengths.
func Lengths() []Length {
	return []Length{LengthShort, LengthMedium, LengthLong, LengthDetailedLong}
}

// ParseLength maps unknown values to LengthShort.
func ParseLength(s string) Length {
	for _, l := range Lengths() {
		if string(l) == strings.ToLower(strings.TrimSpace(s)) {
			return l
		}
	}
	return LengthShort
}

// SystemPrompt prefixes prompt (or DefaultPrompt) with the length directive.
func SystemPrompt(length Length, prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return "Generate a " + string(length) + " summary. " + prompt
}

// BuildChat assembles the messages sent for a chat turn and the transcript
// shown to the user. Placeholders from earlier turns are dropped before the
// window is applied.
func BuildChat(history []model.ChatMessage, input, article string, includeArticle bool) (sent, display []model.ChatMessage) {
	turns := make([]model.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role == model.RoleSystem {
			continue
		}
		turns = append(turns, m)
	}
	turns = append(turns, model.ChatMessage{Role: model.RoleUser, Content: input})
	if len(turns) > ChatWindow {
		turns = turns[len(turns)-ChatWindow:]
	}

	sent = make([]model.ChatMessage, 0, len(turns)+1)
	display = make([]model.ChatMessage, 0, len(turns)+1)
	if includeArticle && article != "" {
		sent = append(sent, model.ChatMessage{Role: model.RoleSystem, Content: article})
		display = append(display, model.ChatMessage{Role: model.RoleSystem, Content: ArticlePlaceholder})
	}
	sent = append(sent, turns...)
	display = append(display, turns...)
	return sent, display
}
