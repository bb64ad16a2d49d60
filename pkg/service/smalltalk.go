package service

import "strings"

// Canned replies for trivial exchanges, served without a model
// round-trip.
var cachedReplies = map[string]string{
	"hi":           "Hi! How are you feeling today?",
	"hello":        "Hello! How are you feeling today?",
	"hey":          "Hey there! How are you doing?",
	"good morning": "Good morning! How did you sleep?",
	"good evening": "Good evening! How was your day?",
	"how are you":  "I'm here and ready to listen. How are you feeling?",
}

var acknowledgements = map[string]string{
	"ok":        "Okay. I'm here if you need anything else.",
	"okay":      "Okay. I'm here if you need anything else.",
	"got it":    "Glad that helped.",
	"thanks":    "You're welcome. Anything else on your mind?",
	"thank you": "You're welcome. Anything else on your mind?",
}

var closures = map[string]string{
	"bye":        "Take care of yourself. I'm here whenever you need me.",
	"goodbye":    "Take care of yourself. I'm here whenever you need me.",
	"good night": "Good night. Rest well.",
	"see you":    "See you. Take care.",
}

// CachedReply returns a canned response for greetings,
// acknowledgements, and closures, or "" when the message needs the
// full pipeline.
func CachedReply(text string) string {
	key := strings.ToLower(strings.TrimSpace(text))
	key = strings.TrimRight(key, ".!?")
	if reply, ok := cachedReplies[key]; ok {
		return reply
	}
	if reply, ok := acknowledgements[key]; ok {
		return reply
	}
	if reply, ok := closures[key]; ok {
		return reply
	}
	return ""
}
