package api

import "github.com/andrelcx/wamon/internal/store"

// MarkProcessedRequest records the triage verdict for a captured message.
// WorkRelated is a pointer so "false" and "absent" stay distinguishable.
type MarkProcessedRequest struct {
	WorkRelated *bool  `json:"work_related" validate:"required"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type messagesResponse struct {
	Messages []store.Message `json:"messages"`
	Count    int             `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
