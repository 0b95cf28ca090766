package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/aide/internal/agent"
	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/llm"
)

// editableConfig lists the config subtrees config.get and config.set may
// touch. Secrets and storage paths stay out of reach.
var editableConfig = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"persona",
	"context",
	"dispatch",
	"voice",
	"upload",
}

func configEditable(key string) bool {
	for _, prefix := range editableConfig {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// llmCallTimeout bounds one chat, dispatch or sync call.
const llmCallTimeout = 5 * time.Minute

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPC() {
	s.handle("health", 0, s.rpcHealth)
	s.handle("config.get", 0, s.rpcConfigGet)
	s.handle("config.set", 0, s.rpcConfigSet)
	s.handle("upload.attach", 0, s.rpcUploadAttach)

	s.handle("chat.send", svcChat, s.rpcChatSend)

	s.handle("agents.list", svcAgents, s.rpcAgentsList)
	s.handle("agents.toggle", svcAgents, s.rpcAgentsToggle)
	s.handle("agents.dispatch", svcAgents, s.rpcAgentsDispatch)

	s.handle("conversation.history", svcMemory, s.rpcConversationHistory)
	s.handle("conversation.summary", svcMemory, s.rpcConversationSummary)
	s.handle("conversation.clear", svcMemory, s.rpcConversationClear)
	s.handle("conversation.export", svcMemory, s.rpcConversationExport)
	s.handle("conversation.import", svcMemory, s.rpcConversationImport)
	s.handle("conversation.search", svcMemory, s.rpcConversationSearch)

	s.handle("prefs.get", svcPrefs, s.rpcPrefsGet)
	s.handle("prefs.set", svcPrefs, s.rpcPrefsSet)
	s.handle("voice.transcript", svcVoice, s.rpcVoiceTranscript)
	s.handle("sync.push", svcSync|svcMemory, s.rpcSyncPush)
}

// HealthResponse is the health RPC payload.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Persona  string          `json:"persona,omitempty"`
	Clients  int             `json:"clients,omitempty"`
	UptimeMs int64           `json:"uptimeMs,omitempty"`
	Services map[string]bool `json:"services,omitempty"`
}

// handleHealth is unauthenticated, so it says nothing beyond liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Persona:  s.currentPersona().Name,
		Clients:  s.clients.count(),
		Services: s.Services(),
	}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(resp)
}

type configParams struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// configPath validates key for config.get and config.set.
func (rc *RequestContext) configPath(key string) ([]string, bool) {
	if key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return nil, false
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return nil, false
	}
	if !configEditable(key) {
		rc.RespondError(CodeForbidden, "config path is not editable: "+key)
		return nil, false
	}
	return path, true
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configParams
	if !rc.Decode(&p) {
		return
	}
	path, ok := rc.configPath(p.Key)
	if !ok {
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !found {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configParams
	if !rc.Decode(&p) {
		return
	}
	path, ok := rc.configPath(p.Key)
	if !ok {
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

type chatSendParams struct {
	Message     string              `json:"message"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	var p chatSendParams
	if !rc.Decode(&p) {
		return
	}
	if strings.TrimSpace(p.Message) == "" && len(p.Attachments) == 0 {
		rc.RespondError(CodeInvalidParams, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), llmCallTimeout)
	defer cancel()

	var reply *agent.Reply
	var err error
	if p.Stream {
		reply, err = s.runner.SendStream(ctx, p.Message, p.Attachments, func(evt llm.StreamEvent) {
			rc.Event(EventChatDelta, ChatDelta{RequestID: rc.Frame.ID, Content: evt.Content})
		})
	} else {
		reply, err = s.runner.Send(ctx, p.Message, p.Attachments)
	}
	if err != nil {
		rc.RespondError(CodeAgentError, err.Error())
		return
	}
	rc.Respond(replyPayload(reply))
}

func replyPayload(r *agent.Reply) map[string]any {
	out := map[string]any{
		"response":   r.Text,
		"model":      r.Model,
		"usage":      r.Usage,
		"durationMs": r.Duration.Milliseconds(),
		"userTurn":   r.UserTurn,
		"modelTurn":  r.ModelTurn,
		"summary":    r.Summary,
	}
	if r.SummaryError != "" {
		out["summaryError"] = r.SummaryError
	}
	return out
}

type agentInfo struct {
	domain.Agent
	domain.AgentStats
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	roster := s.dispatcher.Roster()
	agents := roster.Agents()
	out := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		st, _ := roster.Stats(a.Name)
		out = append(out, agentInfo{Agent: a, AgentStats: st})
	}
	rc.Respond(map[string]any{"agents": out})
}

type agentsToggleParams struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (s *Server) rpcAgentsToggle(rc *RequestContext) {
	var p agentsToggleParams
	if !rc.Decode(&p) {
		return
	}
	roster := s.dispatcher.Roster()
	if err := roster.SetActive(p.Name, p.Active); err != nil {
		rc.RespondError(CodeNotFound, err.Error())
		return
	}
	rc.Respond(map[string]any{"name": p.Name, "active": p.Active, "activeAgents": roster.Active()})
}

type agentsDispatchParams struct {
	Task    string   `json:"task"`
	Context string   `json:"context,omitempty"`
	Agents  []string `json:"agents,omitempty"` // defaults to the active agents
}

// dispatchProgressInterval paces dispatch.progress events.
var dispatchProgressInterval = 500 * time.Millisecond

func (s *Server) rpcAgentsDispatch(rc *RequestContext) {
	var p agentsDispatchParams
	if !rc.Decode(&p) {
		return
	}
	if strings.TrimSpace(p.Task) == "" {
		rc.RespondError(CodeInvalidParams, "task is required")
		return
	}
	names := p.Agents
	if len(names) == 0 {
		names = s.dispatcher.Roster().Active()
	}

	ctx, cancel := context.WithTimeout(context.Background(), llmCallTimeout)
	defer cancel()

	progress := agent.StartProgress(dispatchProgressInterval, 5, func(pct int) {
		rc.Event(EventDispatchProgress, DispatchProgress{RequestID: rc.Frame.ID, Percent: pct})
	})
	results, err := s.dispatcher.Dispatch(ctx, p.Task, p.Context, names)
	progress.Stop()

	switch {
	case errors.Is(err, agent.ErrNoActiveAgents):
		rc.RespondError(CodeNoActiveAgents, "select at least one agent")
	case errors.Is(err, agent.ErrUnknownAgent):
		rc.RespondError(CodeNotFound, err.Error())
	case err != nil:
		rc.RespondError(CodeInvalidParams, err.Error())
	default:
		rc.Respond(map[string]any{"results": results})
	}
}
