package protocol

import (
	"errors"
	"testing"
)

func TestParseCommandAction(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"getSession","tabId":12}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Action != ActionGetSession {
		t.Fatalf("Action = %q, want %q", cmd.Action, ActionGetSession)
	}

	var req GetSession
	if err := cmd.Decode(&req); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if req.TabID != "12" {
		t.Fatalf("TabID = %q, want %q", req.TabID, "12")
	}
}

func TestParseCommandAcceptsTypeDiscriminator(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"chatWithAI","message":"hi","pageData":{}}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Action != ActionChatWithAI {
		t.Fatalf("Action = %q, want %q", cmd.Action, ActionChatWithAI)
	}
}

func TestParseCommandKeepsRequestID(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"getSettings","id":" r-7 "}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.ID != "r-7" {
		t.Fatalf("ID = %q, want r-7", cmd.ID)
	}
}

func TestParseCommandRejectsMissingAction(t *testing.T) {
	for _, raw := range []string{`{}`, `{"action":"  "}`, `{"tabId":1}`} {
		if _, err := ParseCommand([]byte(raw)); !errors.Is(err, ErrMissingAction) {
			t.Fatalf("ParseCommand(%s) error = %v, want ErrMissingAction", raw, err)
		}
	}
	if _, err := ParseCommand([]byte(`not json`)); err == nil {
		t.Fatalf("ParseCommand() should reject invalid JSON")
	}
}

func TestParseCommandKeepsUnknownActions(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"doMagic"}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Action != "doMagic" {
		t.Fatalf("Action = %q", cmd.Action)
	}
}

func TestTabIDForms(t *testing.T) {
	cases := map[string]TabID{
		`{"tabId":"abc"}`: "abc",
		`{"tabId":42}`:    "42",
		`{"tabId":null}`:  "",
		`{}`:              "",
	}
	for raw, want := range cases {
		cmd := Command{Action: ActionGetSession, Raw: []byte(raw)}
		var req GetSession
		if err := cmd.Decode(&req); err != nil {
			t.Fatalf("Decode(%s) error = %v", raw, err)
		}
		if req.TabID != want {
			t.Fatalf("Decode(%s) TabID = %q, want %q", raw, req.TabID, want)
		}
	}

	var req GetSession
	if err := (Command{Action: ActionGetSession, Raw: []byte(`{"tabId":[1]}`)}).Decode(&req); err == nil {
		t.Fatalf("Decode() should reject array tab ids")
	}
}

func TestUpdateSessionDecodesPatch(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"updateSession","tabId":3,"data":{"url":"https://x","note":[1,2]}}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	var req UpdateSession
	if err := cmd.Decode(&req); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(req.Data["url"]) != `"https://x"` || string(req.Data["note"]) != `[1,2]` {
		t.Fatalf("unexpected patch: %v", req.Data)
	}
}

func TestParseScannerFrame(t *testing.T) {
	msg, err := ParseScannerFrame([]byte(`{"type":"scanResult","id":"r1","success":true,"data":{"title":"T"}}`))
	if err != nil {
		t.Fatalf("ParseScannerFrame() error = %v", err)
	}
	res, ok := msg.(ScanResult)
	if !ok {
		t.Fatalf("message type = %T, want ScanResult", msg)
	}
	if res.ID != "r1" || !res.Success {
		t.Fatalf("unexpected scan result: %+v", res)
	}

	msg, err = ParseScannerFrame([]byte(`{"action":"pageScanned","url":"https://x","data":{}}`))
	if err != nil {
		t.Fatalf("ParseScannerFrame() error = %v", err)
	}
	if cmd, ok := msg.(Command); !ok || cmd.Action != ActionPageScanned {
		t.Fatalf("message = %#v, want pageScanned command", msg)
	}

	if _, err := ParseScannerFrame([]byte(`{"type":"scanResult"}`)); err == nil {
		t.Fatalf("scan result without id should be rejected")
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(EventTabUpdated, []byte(`{"tabId":5,"status":"complete","url":"https://x"}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	updated, ok := ev.(TabUpdated)
	if !ok || updated.TabID != "5" || updated.Status != "complete" {
		t.Fatalf("unexpected event: %#v", ev)
	}

	if _, err := ParseEvent(EventTabActivated, []byte(`{}`)); err == nil {
		t.Fatalf("tabActivated without tab id should be rejected")
	}
	if _, err := ParseEvent("tabClosed", nil); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if ev, err := ParseEvent(EventInstalled, nil); err != nil || ev.(Installed).Reason != "" {
		t.Fatalf("ParseEvent(installed) = %#v, %v", ev, err)
	}
}
