package coordinator

import (
	"errors"

	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
)

const codeUnknownAction = "unknown_action"

const (
	msgInvalidFormat   = "Invalid message format"
	msgUnexpected      = "An unexpected error occurred"
	msgUnauthenticated = "User not authenticated. Please connect your API key first."
	msgNoPageData      = "No page data available. Please scan the page first."
)

// userError carries a message that is shown to the user verbatim.
type userError struct {
	class reliability.Class
	msg   string
}

func (e *userError) Error() string            { return e.msg }
func (e *userError) Class() reliability.Class { return e.class }

func invalid(msg string) error {
	return &userError{class: reliability.ClassInvalidRequest, msg: msg}
}

type messageSet struct {
	badCredentials string
	quota          string
	rateLimited    string
	transport      string
	timeout        string
	fallback       string
}

var chatMessages = messageSet{
	badCredentials: "Invalid API key. Please check your OpenAI API key in settings.",
	quota:          "API quota exceeded. Please check your OpenAI billing and usage limits.",
	rateLimited:    "Rate limit exceeded. Please wait a moment and try again.",
	transport:      "Network error. Please check your internet connection and try again.",
	timeout:        "Request timed out. Please try again with a shorter message.",
	fallback:       "An error occurred while processing your request.",
}

var authMessages = messageSet{
	badCredentials: "Invalid API key. Please check your OpenAI API key and try again.",
	quota:          "API key is valid but has no available credits. Please check your OpenAI billing.",
	rateLimited:    "Rate limit exceeded. Please wait a moment and try again.",
	transport:      "Network error during authentication. Please check your internet connection.",
	timeout:        "Network error during authentication. Please check your internet connection.",
	fallback:       "Authentication failed.",
}

var scanMessages = messageSet{
	transport: "Page scanner is not connected. Please refresh the page and try again.",
	timeout:   "Scan timeout - page took too long to respond",
	fallback:  "Could not scan this page. Please refresh the page and try again.",
}

var genericMessages = messageSet{
	fallback: msgUnexpected,
}

func messagesFor(action protocol.Action) messageSet {
	switch action {
	case protocol.ActionAuthenticateUser:
		return authMessages
	case protocol.ActionChatWithAI, protocol.ActionGetRecommendations, protocol.ActionGetSimilarProducts, protocol.ActionGetProductReviews:
		return chatMessages
	case protocol.ActionScanTab:
		return scanMessages
	default:
		return genericMessages
	}
}

// describe turns err into the message shown for action.
func describe(action protocol.Action, err error) string {
	var ue *userError
	if errors.As(err, &ue) {
		return ue.msg
	}
	set := messagesFor(action)
	pick := func(s string) string {
		if s == "" {
			return set.fallback
		}
		return s
	}
	switch reliability.Classify(err) {
	case reliability.ClassUnauthenticated:
		return msgUnauthenticated
	case reliability.ClassInvalidRequest:
		return msgInvalidFormat
	case reliability.ClassBadCredentials:
		return pick(set.badCredentials)
	case reliability.ClassQuota:
		return pick(set.quota)
	case reliability.ClassRateLimited:
		return pick(set.rateLimited)
	case reliability.ClassTransport:
		return pick(set.transport)
	case reliability.ClassTimeout:
		return pick(set.timeout)
	default:
		return set.fallback
	}
}
