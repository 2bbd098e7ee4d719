// Package coordinator routes inbound commands and browser lifecycle events to
// the session store, credential vault, AI client and page scanner.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/observability"
	"github.com/ent0n29/pagelens/internal/pagedata"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
	"github.com/ent0n29/pagelens/internal/session"
	"github.com/ent0n29/pagelens/internal/settings"
)

const DefaultChatTimeout = 30 * time.Second

// AI is the subset of the AI client the coordinator drives.
type AI interface {
	CheckCredentials(ctx context.Context, creds credentials.Credentials) error
	ValidateCredentials(ctx context.Context, creds credentials.Credentials) bool
	GenerateChatResponse(ctx context.Context, creds credentials.Credentials, userMessage string, page *pagedata.PageData, history []aiclient.ChatMessage) (string, error)
	AnalyzePageData(ctx context.Context, creds credentials.Credentials, page *pagedata.PageData) (aiclient.Analysis, error)
	GetRecommendations(ctx context.Context, creds credentials.Credentials, page *pagedata.PageData) ([]string, bool, error)
	FindSimilarProducts(ctx context.Context, creds credentials.Credentials, product pagedata.Product) (aiclient.SimilarProducts, error)
	GetProductReviews(product pagedata.Product) []aiclient.CannedReview
}

// Scanner requests fresh page data from the scanner attached to a tab.
type Scanner interface {
	RequestScan(ctx context.Context, tabID string) (*pagedata.PageData, error)
}

// Notifier pushes a message to open popups.
type Notifier interface {
	Notify(v any) int
}

type Options struct {
	KV       kvstore.Store
	Vault    *credentials.Vault
	Sessions *session.Store
	AI       AI
	Scanner  Scanner
	Popup    Notifier
	Opener   Opener
	Metrics  *observability.Metrics

	ChatTimeout   time.Duration
	OnboardingURL string
	// DefaultModel fills aiModel in the built-in defaults.
	DefaultModel string
	// SeedSettings replaces settings.Defaults on first install and is the
	// base that stored settings are read over.
	SeedSettings *settings.Settings
}

// Request is one inbound command. SourceTab is set when the command arrived
// on a tab's scanner socket.
type Request struct {
	Command   protocol.Command
	SourceTab string
}

type handlerFunc func(ctx context.Context, req Request) (protocol.Response, error)

type eventFunc func(ctx context.Context, event any) error

type Coordinator struct {
	kv       kvstore.Store
	vault    *credentials.Vault
	sessions *session.Store
	ai       AI
	scanner  Scanner
	popup    Notifier
	opener   Opener
	metrics  *observability.Metrics

	chatTimeout   time.Duration
	onboardingURL string
	seed          settings.Settings
	now           func() time.Time

	handlers map[protocol.Action]handlerFunc
	events   map[protocol.EventKind]eventFunc

	background sync.WaitGroup
}

func New(opts Options) (*Coordinator, error) {
	if opts.KV == nil || opts.Vault == nil || opts.Sessions == nil || opts.AI == nil {
		return nil, errors.New("coordinator requires a store, vault, session store and AI client")
	}
	c := &Coordinator{
		kv:            opts.KV,
		vault:         opts.Vault,
		sessions:      opts.Sessions,
		ai:            opts.AI,
		scanner:       opts.Scanner,
		popup:         opts.Popup,
		opener:        opts.Opener,
		metrics:       opts.Metrics,
		chatTimeout:   opts.ChatTimeout,
		onboardingURL: strings.TrimSpace(opts.OnboardingURL),
		seed:          settings.Defaults(opts.DefaultModel),
		now:           time.Now,
	}
	if c.chatTimeout <= 0 {
		c.chatTimeout = DefaultChatTimeout
	}
	if opts.SeedSettings != nil {
		c.seed = *opts.SeedSettings
	}

	c.handlers = map[protocol.Action]handlerFunc{
		protocol.ActionPageScanned:        c.handlePageScanned,
		protocol.ActionChatWithAI:         c.handleChatWithAI,
		protocol.ActionAuthenticateUser:   c.handleAuthenticateUser,
		protocol.ActionGetSession:         c.handleGetSession,
		protocol.ActionUpdateSession:      c.handleUpdateSession,
		protocol.ActionScanTab:            c.handleScanTab,
		protocol.ActionGetRecommendations: c.handleGetRecommendations,
		protocol.ActionGetSimilarProducts: c.handleGetSimilarProducts,
		protocol.ActionGetProductReviews:  c.handleGetProductReviews,
		protocol.ActionClearCredentials:   c.handleClearCredentials,
		protocol.ActionGetSettings:        c.handleGetSettings,
		protocol.ActionSaveSettings:       c.handleSaveSettings,
		protocol.ActionRecordInteraction:  c.handleRecordInteraction,
	}
	c.events = map[protocol.EventKind]eventFunc{
		protocol.EventInstalled:    c.onInstalled,
		protocol.EventTabActivated: c.onTabActivated,
		protocol.EventTabUpdated:   c.onTabUpdated,
	}

	c.sessions.SetEvictHook(func(string) {
		c.metrics.ObserveSessionEvent("evicted")
	})
	return c, nil
}

// Handle parses raw and dispatches it. It never returns an error; failures are
// reported in the response.
func (c *Coordinator) Handle(ctx context.Context, raw []byte) protocol.Response {
	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		log.Printf("invalid message format: %v", err)
		c.metrics.ObserveCommand("invalid", string(reliability.ClassInvalidRequest), 0)
		return protocol.Fail(string(reliability.ClassInvalidRequest), msgInvalidFormat)
	}
	return c.Dispatch(ctx, Request{Command: cmd})
}

// Dispatch runs the handler registered for req's action.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) (resp protocol.Response) {
	action := req.Command.Action
	handler, ok := c.handlers[action]
	if !ok {
		log.Printf("unknown action: %s", action)
		c.metrics.ObserveCommand("unknown", codeUnknownAction, 0)
		resp = protocol.Fail(codeUnknownAction, fmt.Sprintf("Unknown action: %s. Please refresh the extension.", action))
		resp.ID = req.Command.ID
		return resp
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("handler panic action=%s: %v\n%s", action, r, debug.Stack())
			resp = protocol.Fail(string(reliability.ClassInternal), msgUnexpected)
		}
		resp.ID = req.Command.ID
		result := "ok"
		if !resp.Success {
			result = resp.Code
		}
		c.metrics.ObserveCommand(string(action), result, time.Since(start))
	}()

	resp, err := handler(ctx, req)
	if err != nil {
		return c.failure(action, err)
	}
	resp.Success = true
	return resp
}

// HandleEvent runs the subscriber for a lifecycle event.
func (c *Coordinator) HandleEvent(ctx context.Context, kind protocol.EventKind, raw []byte) (err error) {
	fn, ok := c.events[kind]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrUnsupportedType, kind)
	}
	event, err := protocol.ParseEvent(kind, raw)
	if err != nil {
		return reliability.New(reliability.ClassInvalidRequest, err)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event panic kind=%s: %v\n%s", kind, r, debug.Stack())
			err = reliability.New(reliability.ClassInternal, fmt.Errorf("event %s panicked", kind))
		}
	}()
	if err := fn(ctx, event); err != nil {
		log.Printf("event %s failed: %v", kind, err)
		return err
	}
	return nil
}

// Wait blocks until background analyses finish.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

func (c *Coordinator) failure(action protocol.Action, err error) protocol.Response {
	class := reliability.Classify(err)
	msg := describe(action, err)
	switch class {
	case reliability.ClassInvalidRequest, reliability.ClassUnauthenticated:
	default:
		log.Printf("command %s failed class=%s: %v", action, class, err)
	}
	resp := protocol.Fail(string(class), msg)
	resp.Retryable = reliability.IsRetryable(class)
	return resp
}

// credentials returns the stored credentials or ErrNoCredentials.
func (c *Coordinator) credentials(ctx context.Context) (credentials.Credentials, error) {
	creds, ok := c.vault.Load(ctx)
	if !ok || !creds.Valid() {
		return credentials.Credentials{}, aiclient.ErrNoCredentials
	}
	return creds, nil
}
