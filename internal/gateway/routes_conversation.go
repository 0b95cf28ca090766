package gateway

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/soyeahso/aide/internal/domain"
)

type historyParams struct {
	Limit int `json:"limit,omitempty"` // 0 returns the whole log
}

func (s *Server) rpcConversationHistory(rc *RequestContext) {
	var p historyParams
	if !rc.Decode(&p) {
		return
	}

	var turns []domain.Turn
	var err error
	if p.Limit > 0 {
		turns, err = s.memory.Recent(p.Limit)
	} else {
		turns, err = s.memory.History()
	}
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	rc.Respond(map[string]any{"turns": turns})
}

func (s *Server) rpcConversationSummary(rc *RequestContext) {
	summary, err := s.memory.Summary()
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(map[string]any{"summary": summary})
}

func (s *Server) rpcConversationClear(rc *RequestContext) {
	if err := s.memory.Clear(context.Background()); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(map[string]any{"cleared": true})
}

func (s *Server) rpcConversationExport(rc *RequestContext) {
	var buf bytes.Buffer
	if err := s.memory.Export(&buf); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(map[string]any{"conversation": json.RawMessage(buf.Bytes())})
}

type importParams struct {
	Conversation json.RawMessage `json:"conversation"`
}

func (s *Server) rpcConversationImport(rc *RequestContext) {
	var p importParams
	if !rc.Decode(&p) {
		return
	}
	if len(p.Conversation) == 0 {
		rc.RespondError(CodeInvalidParams, "conversation is required")
		return
	}
	if err := s.memory.Import(context.Background(), bytes.NewReader(p.Conversation)); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	turns, _ := s.memory.History()
	rc.Respond(map[string]any{"imported": len(turns)})
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) rpcConversationSearch(rc *RequestContext) {
	var p searchParams
	if !rc.Decode(&p) {
		return
	}
	if p.Query == "" {
		rc.RespondError(CodeInvalidParams, "query is required")
		return
	}
	found, err := s.memory.Search(p.Query, p.Limit)
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	if found == nil {
		found = []domain.Turn{}
	}
	rc.Respond(map[string]any{"turns": found})
}
