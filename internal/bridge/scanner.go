package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/pagelens/internal/pagedata"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
)

const DefaultScanTimeout = 15 * time.Second

var (
	ErrScannerUnavailable = reliability.New(reliability.ClassTransport, errors.New("page scanner is not connected for this tab"))
	ErrScanTimeout        = reliability.New(reliability.ClassTimeout, errors.New("scan timeout: page took too long to respond"))
)

// ScanError is a failure reported by the scanner itself.
type ScanError struct {
	Message string
}

func (e *ScanError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return "page scan failed"
	}
	return "page scan failed: " + e.Message
}

func (e *ScanError) Class() reliability.Class { return reliability.ClassUpstream }

type scannerConn struct {
	conn Conn
	seq  uint64
}

// ScannerBridge tracks one scanner socket per tab and correlates scan
// requests with their results by id.
type ScannerBridge struct {
	mu      sync.Mutex
	conns   map[string]scannerConn
	pending map[string]chan protocol.ScanResult
	seq     uint64
	timeout time.Duration
}

func NewScannerBridge(timeout time.Duration) *ScannerBridge {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &ScannerBridge{
		conns:   make(map[string]scannerConn),
		pending: make(map[string]chan protocol.ScanResult),
		timeout: timeout,
	}
}

// Attach registers conn as the scanner for tabID, closing any previous one.
// The returned func detaches it again if it is still the current scanner.
func (b *ScannerBridge) Attach(tabID string, conn Conn) func() {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	prev, hadPrev := b.conns[tabID]
	b.conns[tabID] = scannerConn{conn: conn, seq: seq}
	b.mu.Unlock()

	if hadPrev {
		_ = prev.conn.Close()
	}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.conns[tabID]; ok && cur.seq == seq {
			delete(b.conns, tabID)
		}
	}
}

func (b *ScannerBridge) Connected(tabID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conns[tabID]
	return ok
}

func (b *ScannerBridge) ConnectedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Deliver hands a scan result to its waiting request. It reports false when
// nobody waits for that id anymore, e.g. after a timeout.
func (b *ScannerBridge) Deliver(res protocol.ScanResult) bool {
	b.mu.Lock()
	ch, ok := b.pending[res.ID]
	if ok {
		delete(b.pending, res.ID)
	}
	b.mu.Unlock()
	if !ok {
		log.Printf("scanner result discarded id=%s", res.ID)
		return false
	}
	ch <- res
	return true
}

// RequestScan asks the scanner of tabID for fresh page data and waits for the
// answer, bounded by the scan timeout.
func (b *ScannerBridge) RequestScan(ctx context.Context, tabID string) (*pagedata.PageData, error) {
	b.mu.Lock()
	sc, ok := b.conns[tabID]
	if !ok {
		b.mu.Unlock()
		return nil, ErrScannerUnavailable
	}
	id := uuid.NewString()
	ch := make(chan protocol.ScanResult, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := sc.conn.WriteJSON(protocol.ScanRequest{Type: protocol.FrameScanPage, ID: id}); err != nil {
		return nil, reliability.New(reliability.ClassTransport, fmt.Errorf("send scan request: %w", err))
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrScanTimeout
		}
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrScanTimeout
	case res := <-ch:
		if !res.Success {
			return nil, &ScanError{Message: res.Error}
		}
		page, err := pagedata.Parse(res.Data)
		if err != nil {
			return nil, &ScanError{Message: err.Error()}
		}
		if page == nil {
			return nil, &ScanError{Message: "no data"}
		}
		return page, nil
	}
}
