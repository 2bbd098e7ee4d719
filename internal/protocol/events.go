package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind names a browser lifecycle event.
type EventKind string

const (
	EventInstalled    EventKind = "installed"
	EventTabActivated EventKind = "tabActivated"
	EventTabUpdated   EventKind = "tabUpdated"
)

type Installed struct {
	Reason string `json:"reason"`
}

type TabActivated struct {
	TabID TabID `json:"tabId"`
}

type TabUpdated struct {
	TabID  TabID  `json:"tabId"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

func ParseEvent(kind EventKind, raw []byte) (any, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch kind {
	case EventInstalled:
		var ev Installed
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTabActivated:
		var ev TabActivated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.TabID == "" {
			return nil, errors.New("invalid tabActivated: missing tabId")
		}
		return ev, nil
	case EventTabUpdated:
		var ev TabUpdated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.TabID == "" {
			return nil, errors.New("invalid tabUpdated: missing tabId")
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
}
