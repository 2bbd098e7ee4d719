package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/pagedata"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
	"github.com/ent0n29/pagelens/internal/session"
	"github.com/ent0n29/pagelens/internal/settings"
)

var errChatTimeout = reliability.New(reliability.ClassTimeout, errors.New("chat request timed out"))

func (c *Coordinator) handlePageScanned(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.PageScanned
	if err := req.Command.Decode(&msg); err != nil {
		return protocol.Response{}, invalid("Invalid page scan")
	}
	tabID := req.SourceTab
	if tabID == "" {
		tabID = msg.TabID.String()
	}
	if tabID == "" || isNull(msg.Data) {
		return protocol.Response{}, invalid("Invalid page scan")
	}
	page, err := pagedata.Parse(msg.Data)
	if err != nil {
		return protocol.Response{}, invalid("Invalid page scan")
	}
	url := msg.URL
	if url == "" {
		url = page.URL
	}
	if err := c.storeScan(ctx, tabID, url, msg.Data); err != nil {
		return protocol.Response{}, err
	}
	c.maybeAnalyze(ctx, tabID, page)
	return protocol.OK(), nil
}

func (c *Coordinator) handleChatWithAI(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.ChatWithAI
	if err := req.Command.Decode(&msg); err != nil || msg.Message == "" || isNull(msg.PageData) {
		return protocol.Response{}, invalid("Invalid chat request format")
	}
	creds, err := c.credentials(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	if strings.TrimSpace(msg.Message) == "" {
		return protocol.Response{}, invalid("Please enter a message to send.")
	}
	page, err := pagedata.Parse(msg.PageData)
	if err != nil {
		return protocol.Response{}, invalid("Invalid chat request format")
	}
	if page == nil {
		return protocol.Response{}, invalid(msgNoPageData)
	}

	reply, err := c.chat(ctx, creds, msg.Message, page, msg.ChatHistory)
	if err != nil {
		c.metrics.ObserveUpstreamError("chat", string(reliability.Classify(err)))
		return protocol.Response{}, err
	}

	if tabID := msg.TabID.String(); tabID != "" {
		c.recordChat(ctx, tabID, msg.Message, reply)
	}
	return protocol.Response{Reply: reply}, nil
}

// chat bounds the AI call by the chat timeout. A reply that arrives after
// the deadline is dropped.
func (c *Coordinator) chat(ctx context.Context, creds credentials.Credentials, message string, page *pagedata.PageData, history []aiclient.ChatMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := c.ai.GenerateChatResponse(callCtx, creds, message, page, history)
		done <- result{reply: reply, err: err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", errChatTimeout
		}
		return "", callCtx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.reply) == "" {
			return "", aiclient.ErrMalformedResponse
		}
		return res.reply, nil
	}
}

func (c *Coordinator) recordChat(ctx context.Context, tabID, userMessage, reply string) {
	for _, turn := range []aiclient.ChatMessage{
		{Sender: "user", Content: userMessage},
		{Sender: "ai", Content: reply},
	} {
		turn.Timestamp = c.now().UnixMilli()
		data, err := json.Marshal(turn)
		if err != nil {
			continue
		}
		if _, err := c.sessions.AppendInteraction(ctx, tabID, session.Interaction{Type: "chat", Data: data}); err != nil {
			log.Printf("record chat interaction failed tab=%s: %v", tabID, err)
			return
		}
	}
	c.metrics.ObserveSessionEvent("interaction")
}

func (c *Coordinator) handleAuthenticateUser(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.AuthenticateUser
	if err := req.Command.Decode(&msg); err != nil || msg.Credentials == nil {
		return protocol.Response{}, invalid("Invalid authentication request")
	}
	creds := *msg.Credentials
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	if !creds.Valid() {
		return protocol.Response{}, &userError{class: reliability.ClassBadCredentials, msg: authMessages.badCredentials}
	}

	if err := c.ai.CheckCredentials(ctx, creds); err != nil {
		c.metrics.ObserveUpstreamError("authenticate", string(reliability.Classify(err)))
		return protocol.Response{}, err
	}
	if err := c.vault.Save(ctx, creds); err != nil {
		return protocol.Response{}, reliability.New(reliability.ClassStorage, err)
	}
	log.Printf("authentication successful backend=%s", c.vault.BackendName())
	return protocol.Response{Message: "Authentication successful"}, nil
}

func (c *Coordinator) handleGetSession(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.GetSession
	if err := req.Command.Decode(&msg); err != nil || msg.TabID == "" {
		return protocol.Response{}, invalid("Invalid session request")
	}
	sess, err := c.sessions.Get(ctx, msg.TabID.String())
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.Response{Session: sess}, nil
}

func (c *Coordinator) handleUpdateSession(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.UpdateSession
	if err := req.Command.Decode(&msg); err != nil || msg.TabID == "" || msg.Data == nil {
		return protocol.Response{}, invalid("Invalid session update request")
	}
	if _, err := c.sessions.Update(ctx, msg.TabID.String(), msg.Data); err != nil {
		if errors.Is(err, session.ErrInvalidPatch) {
			return protocol.Response{}, invalid("Invalid session update request")
		}
		return protocol.Response{}, err
	}
	c.metrics.ObserveSessionEvent("updated")
	return protocol.OK(), nil
}

func (c *Coordinator) handleScanTab(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.ScanTab
	if err := req.Command.Decode(&msg); err != nil || msg.TabID == "" {
		return protocol.Response{}, invalid("Invalid scan request")
	}
	if c.scanner == nil {
		return protocol.Response{}, reliability.New(reliability.ClassTransport, errors.New("no scanner bridge configured"))
	}
	tabID := msg.TabID.String()
	page, err := c.scanner.RequestScan(ctx, tabID)
	if err != nil {
		class := reliability.Classify(err)
		c.metrics.ObserveScan(string(class))
		c.metrics.ObserveUpstreamError("scan", string(class))
		return protocol.Response{}, err
	}
	c.metrics.ObserveScan("ok")

	raw, err := json.Marshal(page)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode page data: %w", err)
	}
	if err := c.storeScan(ctx, tabID, page.URL, raw); err != nil {
		return protocol.Response{}, err
	}
	c.maybeAnalyze(ctx, tabID, page)
	return protocol.Response{Data: page}, nil
}

func (c *Coordinator) handleGetRecommendations(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.GetRecommendations
	if err := req.Command.Decode(&msg); err != nil {
		return protocol.Response{}, invalid("Invalid recommendations request")
	}
	creds, err := c.credentials(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	page := msg.PageData
	if page == nil && msg.TabID != "" {
		if sess, err := c.sessions.Get(ctx, msg.TabID.String()); err == nil {
			page = sess.ScanData
		}
	}
	if page == nil {
		return protocol.Response{}, invalid(msgNoPageData)
	}

	recs, degraded, err := c.ai.GetRecommendations(ctx, creds, page)
	if err != nil {
		c.metrics.ObserveUpstreamError("recommendations", string(reliability.Classify(err)))
		return protocol.Response{}, err
	}
	if degraded {
		c.metrics.ObserveDegraded("recommendations")
	}
	if recs == nil {
		recs = []string{}
	}
	return protocol.Response{Recommendations: recs, Degraded: degraded}, nil
}

func (c *Coordinator) handleGetSimilarProducts(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.ProductQuery
	if err := req.Command.Decode(&msg); err != nil || msg.Product == nil {
		return protocol.Response{}, invalid("Invalid product request")
	}
	creds, err := c.credentials(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	similar, err := c.ai.FindSimilarProducts(ctx, creds, *msg.Product)
	if err != nil {
		c.metrics.ObserveUpstreamError("similar_products", string(reliability.Classify(err)))
		return protocol.Response{}, err
	}
	if similar.Degraded {
		c.metrics.ObserveDegraded("similar_products")
	}
	return protocol.Response{Products: similar.Products, Degraded: similar.Degraded}, nil
}

func (c *Coordinator) handleGetProductReviews(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.ProductQuery
	if err := req.Command.Decode(&msg); err != nil || msg.Product == nil {
		return protocol.Response{}, invalid("Invalid product request")
	}
	if _, err := c.credentials(ctx); err != nil {
		return protocol.Response{}, err
	}
	c.metrics.ObserveDegraded("reviews")
	return protocol.Response{Reviews: c.ai.GetProductReviews(*msg.Product), Degraded: true}, nil
}

func (c *Coordinator) handleClearCredentials(ctx context.Context, _ Request) (protocol.Response, error) {
	if err := c.vault.Clear(ctx); err != nil {
		return protocol.Response{}, reliability.New(reliability.ClassStorage, err)
	}
	return protocol.Response{Message: "Credentials cleared"}, nil
}

func (c *Coordinator) handleGetSettings(ctx context.Context, _ Request) (protocol.Response, error) {
	s, err := settings.Load(ctx, c.kv, c.seed)
	if err != nil {
		log.Printf("settings load failed: %v", err)
	}
	return protocol.Response{Settings: &s}, nil
}

func (c *Coordinator) handleSaveSettings(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.SaveSettings
	if err := req.Command.Decode(&msg); err != nil || msg.Settings == nil {
		return protocol.Response{}, invalid("Invalid settings request")
	}
	if err := settings.Save(ctx, c.kv, *msg.Settings); err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			return protocol.Response{}, invalid("Invalid settings: " + err.Error())
		}
		return protocol.Response{}, reliability.New(reliability.ClassStorage, err)
	}
	saved, err := settings.Load(ctx, c.kv, c.seed)
	if err != nil {
		return protocol.Response{}, reliability.New(reliability.ClassStorage, err)
	}
	return protocol.Response{Settings: &saved}, nil
}

func (c *Coordinator) handleRecordInteraction(ctx context.Context, req Request) (protocol.Response, error) {
	var msg protocol.RecordInteraction
	if err := req.Command.Decode(&msg); err != nil || msg.TabID == "" || strings.TrimSpace(msg.Interaction.Type) == "" {
		return protocol.Response{}, invalid("Invalid interaction request")
	}
	sess, err := c.sessions.AppendInteraction(ctx, msg.TabID.String(), msg.Interaction)
	if err != nil {
		return protocol.Response{}, err
	}
	c.metrics.ObserveSessionEvent("interaction")
	return protocol.Response{Session: sess}, nil
}

func (c *Coordinator) storeScan(ctx context.Context, tabID, url string, data json.RawMessage) error {
	patch, err := session.NewPatch(map[string]any{
		"url":      url,
		"scanData": data,
		"lastScan": c.now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := c.sessions.Update(ctx, tabID, patch); err != nil {
		return err
	}
	c.metrics.ObserveSessionEvent("scanned")
	return nil
}

// maybeAnalyze starts a background analysis when credentials are stored.
// Its failures are logged only.
func (c *Coordinator) maybeAnalyze(ctx context.Context, tabID string, page *pagedata.PageData) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.analyze(context.WithoutCancel(ctx), tabID, creds, page)
	}()
}

func (c *Coordinator) analyze(ctx context.Context, tabID string, creds credentials.Credentials, page *pagedata.PageData) {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	analysis, err := c.ai.AnalyzePageData(ctx, creds, page)
	if err != nil {
		c.metrics.ObserveUpstreamError("analysis", string(reliability.Classify(err)))
		log.Printf("ai analysis failed tab=%s: %v", tabID, err)
		return
	}
	if analysis.Degraded {
		c.metrics.ObserveDegraded("analysis")
	}

	patch, err := session.NewPatch(map[string]any{
		"aiAnalysis":   analysis,
		"lastAnalysis": c.now().UTC(),
	})
	if err != nil {
		log.Printf("ai analysis encode failed tab=%s: %v", tabID, err)
		return
	}
	if _, err := c.sessions.Update(ctx, tabID, patch); err != nil {
		log.Printf("ai analysis store failed tab=%s: %v", tabID, err)
		return
	}
	if c.popup != nil {
		c.popup.Notify(protocol.AnalysisComplete(protocol.TabID(tabID), analysis))
	}
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
