package protocol

import (
	"encoding/json"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/pagedata"
	"github.com/ent0n29/pagelens/internal/session"
	"github.com/ent0n29/pagelens/internal/settings"
)

type PageScanned struct {
	TabID TabID           `json:"tabId"`
	URL   string          `json:"url"`
	Data  json.RawMessage `json:"data"`
}

type ChatWithAI struct {
	TabID       TabID                  `json:"tabId,omitempty"`
	Message     string                 `json:"message"`
	PageData    json.RawMessage        `json:"pageData"`
	ChatHistory []aiclient.ChatMessage `json:"chatHistory,omitempty"`
}

type AuthenticateUser struct {
	Credentials *credentials.Credentials `json:"credentials"`
}

type GetSession struct {
	TabID TabID `json:"tabId"`
}

type UpdateSession struct {
	TabID TabID         `json:"tabId"`
	Data  session.Patch `json:"data"`
}

type ScanTab struct {
	TabID TabID `json:"tabId"`
}

type GetRecommendations struct {
	TabID    TabID              `json:"tabId,omitempty"`
	PageData *pagedata.PageData `json:"pageData"`
}

type ProductQuery struct {
	Product *pagedata.Product `json:"product"`
}

type SaveSettings struct {
	Settings *settings.Settings `json:"settings"`
}

type RecordInteraction struct {
	TabID       TabID               `json:"tabId"`
	Interaction session.Interaction `json:"interaction"`
}

// Response is the single reply to every command. Success is always set.
type Response struct {
	ID              string                  `json:"id,omitempty"`
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
	Code            string                  `json:"code,omitempty"`
	Message         string                  `json:"message,omitempty"`
	Reply           string                  `json:"reply,omitempty"`
	Session         *session.Session        `json:"session,omitempty"`
	Analysis        *aiclient.Analysis      `json:"analysis,omitempty"`
	Recommendations []string                `json:"recommendations,omitempty"`
	Products        []aiclient.Alternative  `json:"products,omitempty"`
	Reviews         []aiclient.CannedReview `json:"reviews,omitempty"`
	Settings        *settings.Settings      `json:"settings,omitempty"`
	Data            *pagedata.PageData      `json:"data,omitempty"`
	Degraded        bool                    `json:"degraded,omitempty"`
	Retryable       bool                    `json:"retryable,omitempty"`
}

func OK() Response {
	return Response{Success: true}
}

func Fail(code, message string) Response {
	return Response{Success: false, Code: code, Error: message}
}
