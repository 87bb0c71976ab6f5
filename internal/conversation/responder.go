package conversation

import (
	"math/rand"
	"strings"
)

// Responder produces the bot reply to a user message.
type Responder interface {
	Respond(userText string) string
}

// Scripted replies used by KeywordResponder.
const (
	ReplyWebsite  = "I'd be happy to help you build a website! What kind of features would you need?"
	ReplyProduct  = "I'm Hummingbird, a voice-based AI assistant that can help you with various tasks. What would you like to know more about?"
	ReplyFallback = "That's interesting! Can you tell me more about what you're looking to achieve?"
)

// KeywordResponder answers by case-insensitive keyword match.
// "website" takes precedence over "product".
type KeywordResponder struct{}

func (KeywordResponder) Respond(userText string) string {
	text := strings.ToLower(userText)
	switch {
	case strings.Contains(text, "website"):
		return ReplyWebsite
	case strings.Contains(text, "product"):
		return ReplyProduct
	default:
		return ReplyFallback
	}
}

// WelcomeMessages are the prompts shown before the user starts speaking.
var WelcomeMessages = []string{
	"Tell me what you're building, I'll fetch the perfect tools.",
	"Share your idea, I'll find the tools to make it real.",
	"Speak your vision, I'll gather everything you need.",
	"Pitch me your product, I'll track down the perfect toolkit.",
	"Describe your dream, I'll source the tools to build it.",
	"Let's shape your idea, I'll fetch the tools for the job.",
	"Say what you're creating, I'll handle the tool hunt.",
	"Unpack your product idea, I'll build your toolset.",
	"Tell me what you need, I'll assemble your toolkit.",
	"Voice your concept, I'll scout the tools to make it happen.",
}

// Welcome returns a random welcome message.
func Welcome() string {
	return WelcomeMessages[rand.Intn(len(WelcomeMessages))]
}
