package gateway

import (
	"encoding/json"
	"slices"

	"github.com/sourcegraph/conc/panics"
)

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// service is a backing component an RPC method cannot run without.
type service uint8

const (
	svcChat service = 1 << iota
	svcAgents
	svcMemory
	svcPrefs
	svcVoice
	svcSync
)

var services = []struct {
	svc     service
	name    string
	missing string
}{
	{svcChat, "chat", "no API key configured"},
	{svcAgents, "agents", "agents are not configured"},
	{svcMemory, "conversation", "conversation memory is not configured"},
	{svcPrefs, "prefs", "local storage is not configured"},
	{svcVoice, "voice", "no wake word configured"},
	{svcSync, "sync", "cloud sync is disabled"},
}

type route struct {
	handler RequestHandler
	needs   service
}

func (s *Server) handle(method string, needs service, h RequestHandler) {
	s.routes[method] = route{handler: h, needs: needs}
}

func (s *Server) wired() service {
	var have service
	if s.runner != nil {
		have |= svcChat
	}
	if s.dispatcher != nil {
		have |= svcAgents
	}
	if s.memory != nil {
		have |= svcMemory
	}
	if s.prefs != nil {
		have |= svcPrefs
	}
	if s.detector.Load() != nil {
		have |= svcVoice
	}
	if s.syncer != nil {
		have |= svcSync
	}
	return have
}

// unavailable explains why a method needing needs cannot run, or returns "".
func (s *Server) unavailable(needs service) string {
	missing := needs &^ s.wired()
	for _, sv := range services {
		if missing&sv.svc != 0 {
			return sv.missing
		}
	}
	return ""
}

// Services reports which backing services are wired, by name.
func (s *Server) Services() map[string]bool {
	have := s.wired()
	out := make(map[string]bool, len(services))
	for _, sv := range services {
		out[sv.name] = have&sv.svc != 0
	}
	return out
}

// Methods returns the sorted names of the methods that can currently run.
func (s *Server) Methods() []string {
	have := s.wired()
	methods := make([]string, 0, len(s.routes))
	for m, r := range s.routes {
		if r.needs&^have == 0 {
			methods = append(methods, m)
		}
	}
	slices.Sort(methods)
	return methods
}

// dispatch runs the handler for a request frame. A panicking handler costs
// the caller an internal error, not the connection.
func (s *Server) dispatch(client *Client, frame Frame) {
	rc := &RequestContext{Client: client, Frame: frame, Server: s}

	r, ok := s.routes[frame.Method]
	if !ok {
		rc.RespondError(CodeMethodNotFound, "unknown method: "+frame.Method)
		return
	}
	if why := s.unavailable(r.needs); why != "" {
		rc.RespondError(CodeUnavailable, why)
		return
	}

	var pc panics.Catcher
	pc.Try(func() { r.handler(rc) })
	if rec := pc.Recovered(); rec != nil {
		s.log.Error().Str("method", frame.Method).Err(rec.AsError()).Msg("handler panicked")
		rc.RespondError(CodeInternal, "internal error")
	}
}

// RequestContext carries one request through its handler.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, code, message); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Params unmarshals the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

// Decode is Params that answers invalid_params itself. It reports whether
// the handler should go on.
func (rc *RequestContext) Decode(target any) bool {
	if err := rc.Params(target); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return false
	}
	return true
}

// Event pushes an event to the requesting client.
func (rc *RequestContext) Event(name string, payload any) {
	if err := rc.Client.SendEvent(name, payload, rc.Server.eventSeq.Add(1)); err != nil {
		rc.Server.log.Debug().Err(err).Str("event", name).Msg("event not delivered")
	}
}
