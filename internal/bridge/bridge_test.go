package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
)

type fakeConn struct {
	mu      sync.Mutex
	writes  chan any
	closed  bool
	failErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan any, 16)}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.writes <- v
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func nextScanRequest(t *testing.T, c *fakeConn) protocol.ScanRequest {
	t.Helper()
	select {
	case v := <-c.writes:
		req, ok := v.(protocol.ScanRequest)
		require.True(t, ok, "write type = %T", v)
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("no scan request written")
		return protocol.ScanRequest{}
	}
}

func TestRequestScanRoundTrip(t *testing.T) {
	b := NewScannerBridge(time.Second)
	conn := newFakeConn()
	detach := b.Attach("7", conn)
	defer detach()

	go func() {
		req := nextScanRequest(t, conn)
		assert.Equal(t, protocol.FrameScanPage, req.Type)
		b.Deliver(protocol.ScanResult{Type: protocol.FrameScanResult, ID: req.ID, Success: true, Data: json.RawMessage(`{"title":"Kettle"}`)})
	}()

	page, err := b.RequestScan(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Kettle", page.Title)
}

func TestRequestScanWithoutScanner(t *testing.T) {
	b := NewScannerBridge(time.Second)
	_, err := b.RequestScan(context.Background(), "1")
	assert.True(t, errors.Is(err, ErrScannerUnavailable))
	assert.Equal(t, reliability.ClassTransport, reliability.Classify(err))
}

func TestRequestScanTimeoutDiscardsLateResult(t *testing.T) {
	b := NewScannerBridge(30 * time.Millisecond)
	conn := newFakeConn()
	b.Attach("7", conn)

	_, err := b.RequestScan(context.Background(), "7")
	assert.True(t, errors.Is(err, ErrScanTimeout))
	assert.Equal(t, reliability.ClassTimeout, reliability.Classify(err))

	req := nextScanRequest(t, conn)
	assert.False(t, b.Deliver(protocol.ScanResult{ID: req.ID, Success: true}))
}

func TestRequestScanReportsScannerFailure(t *testing.T) {
	b := NewScannerBridge(time.Second)
	conn := newFakeConn()
	b.Attach("7", conn)

	go func() {
		req := nextScanRequest(t, conn)
		b.Deliver(protocol.ScanResult{ID: req.ID, Success: false, Error: "dom not ready"})
	}()

	_, err := b.RequestScan(context.Background(), "7")
	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, "dom not ready", scanErr.Message)
}

func TestAttachReplacesPreviousScanner(t *testing.T) {
	b := NewScannerBridge(time.Second)
	first := newFakeConn()
	detachFirst := b.Attach("7", first)
	second := newFakeConn()
	detachSecond := b.Attach("7", second)

	assert.True(t, first.isClosed())
	detachFirst()
	assert.True(t, b.Connected("7"), "stale detach must not remove the new scanner")
	detachSecond()
	assert.False(t, b.Connected("7"))
	assert.Equal(t, 0, b.ConnectedCount())
}

func TestPopupHubNotify(t *testing.T) {
	h := NewPopupHub()
	ok := newFakeConn()
	broken := newFakeConn()
	broken.failErr = errors.New("closed pipe")

	unsubscribe := h.Subscribe(ok)
	h.Subscribe(broken)

	n := h.Notify(protocol.PopupNotification{Target: "popup", Type: "analysisComplete", TabID: "1"})
	assert.Equal(t, 1, n)
	assert.True(t, broken.isClosed())
	assert.Equal(t, 1, h.Len())

	unsubscribe()
	assert.Equal(t, 0, h.Notify("nobody"))
}
