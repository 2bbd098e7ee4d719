package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action identifies an inbound command.
type Action string

const (
	ActionPageScanned        Action = "pageScanned"
	ActionChatWithAI         Action = "chatWithAI"
	ActionAuthenticateUser   Action = "authenticateUser"
	ActionGetSession         Action = "getSession"
	ActionUpdateSession      Action = "updateSession"
	ActionScanTab            Action = "scanTab"
	ActionGetRecommendations Action = "getRecommendations"
	ActionGetSimilarProducts Action = "getSimilarProducts"
	ActionGetProductReviews  Action = "getProductReviews"
	ActionClearCredentials   Action = "clearCredentials"
	ActionGetSettings        Action = "getSettings"
	ActionSaveSettings       Action = "saveSettings"
	ActionRecordInteraction  Action = "recordInteraction"
)

var (
	ErrMissingAction   = errors.New("missing action")
	ErrUnsupportedType = errors.New("unsupported message type")
)

// Envelope carries the discriminator. Older callers send it as "type".
// ID is optional and echoed on the response so socket clients can match
// replies that complete out of order.
type Envelope struct {
	Action Action `json:"action"`
	Type   Action `json:"type"`
	ID     string `json:"id,omitempty"`
}

// Command is a parsed envelope plus the raw body for action-specific decoding.
type Command struct {
	Action Action
	ID     string
	Raw    json.RawMessage
}

func ParseCommand(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("invalid envelope: %w", err)
	}
	action := Action(strings.TrimSpace(string(env.Action)))
	if action == "" {
		action = Action(strings.TrimSpace(string(env.Type)))
	}
	if action == "" {
		return Command{}, ErrMissingAction
	}
	return Command{Action: action, ID: strings.TrimSpace(env.ID), Raw: append(json.RawMessage(nil), raw...)}, nil
}

// Decode unmarshals the command body into v.
func (c Command) Decode(v any) error {
	if len(bytes.TrimSpace(c.Raw)) == 0 {
		return fmt.Errorf("empty %s command", c.Action)
	}
	if err := json.Unmarshal(c.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", c.Action, err)
	}
	return nil
}

// TabID is an opaque tab identifier. Browsers hand out numbers, so JSON
// numbers are accepted and kept in decimal form.
type TabID string

func (t *TabID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TabID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("tab id must be a string or number: %w", err)
	}
	*t = TabID(n.String())
	return nil
}

func (t TabID) String() string { return string(t) }
