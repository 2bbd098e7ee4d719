package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/pagelens/internal/pagedata"
)

var (
	ErrInvalidTabID = errors.New("tab id is required")
	ErrInvalidPatch = errors.New("invalid session patch")
)

// Session is the per-tab record. Keys the type does not model are carried in
// Extra so that arbitrary patches survive a round trip.
type Session struct {
	TabID            string                     `json:"tabId"`
	Created          time.Time                  `json:"created"`
	LastUpdated      time.Time                  `json:"lastUpdated"`
	URL              string                     `json:"url,omitempty"`
	ScanData         *pagedata.PageData         `json:"scanData,omitempty"`
	AIAnalysis       json.RawMessage            `json:"aiAnalysis,omitempty"`
	UserInteractions []Interaction              `json:"userInteractions"`
	Preferences      map[string]json.RawMessage `json:"preferences"`
	LastScan         *time.Time                 `json:"lastScan,omitempty"`
	LastAnalysis     *time.Time                 `json:"lastAnalysis,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Interaction is one user action recorded against a tab.
type Interaction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

var modeledKeys = map[string]struct{}{
	"tabId":            {},
	"created":          {},
	"lastUpdated":      {},
	"url":              {},
	"scanData":         {},
	"aiAnalysis":       {},
	"userInteractions": {},
	"preferences":      {},
	"lastScan":         {},
	"lastAnalysis":     {},
}

// Keys a patch may not overwrite.
var protectedKeys = map[string]struct{}{
	"tabId":       {},
	"created":     {},
	"lastUpdated": {},
}

type sessionFields Session

func (s Session) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(sessionFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, ok := modeledKeys[k]; ok {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var fields sessionFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	fields.Extra = nil
	for k, v := range all {
		if _, ok := modeledKeys[k]; ok {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[k] = v
	}
	*s = Session(fields)
	return nil
}

func newSession(tabID string, now time.Time) *Session {
	return &Session{
		TabID:            tabID,
		Created:          now,
		LastUpdated:      now,
		UserInteractions: []Interaction{},
		Preferences:      map[string]json.RawMessage{},
	}
}

// Patch is a shallow set of top-level session keys.
type Patch map[string]json.RawMessage

// NewPatch encodes each value of fields.
func NewPatch(fields map[string]any) (Patch, error) {
	p := make(Patch, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %q: %v", ErrInvalidPatch, k, err)
		}
		p[k] = raw
	}
	return p, nil
}

// apply overwrites the matching top-level keys of s. Protected keys are
// ignored. On error s is left untouched.
func (p Patch) apply(s *Session) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	for k, v := range p {
		if _, ok := protectedKeys[k]; ok {
			continue
		}
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var next Session
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	next.TabID, next.Created, next.LastUpdated = s.TabID, s.Created, s.LastUpdated
	if next.UserInteractions == nil {
		next.UserInteractions = []Interaction{}
	}
	if next.Preferences == nil {
		next.Preferences = map[string]json.RawMessage{}
	}
	*s = next
	return nil
}

// clone copies the containers of s. ScanData and raw JSON values are never
// mutated in place and are shared.
func clone(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ScanData != nil {
		page := *s.ScanData
		c.ScanData = &page
	}
	c.UserInteractions = append([]Interaction(nil), s.UserInteractions...)
	if c.UserInteractions == nil {
		c.UserInteractions = []Interaction{}
	}
	c.Preferences = make(map[string]json.RawMessage, len(s.Preferences))
	for k, v := range s.Preferences {
		c.Preferences[k] = v
	}
	if s.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	if s.LastScan != nil {
		t := *s.LastScan
		c.LastScan = &t
	}
	if s.LastAnalysis != nil {
		t := *s.LastAnalysis
		c.LastAnalysis = &t
	}
	return &c
}
