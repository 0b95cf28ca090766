package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/store"
	"github.com/soyeahso/aide/internal/upload"
)

type prefsGetParams struct {
	Key string `json:"key,omitempty"` // empty returns persona and preferences
}

func (s *Server) rpcPrefsGet(rc *RequestContext) {
	var p prefsGetParams
	if !rc.Decode(&p) {
		return
	}

	switch p.Key {
	case "":
		prefs, err := s.prefs.Preferences()
		if err != nil {
			rc.RespondError(CodeInternal, err.Error())
			return
		}
		rc.Respond(map[string]any{"persona": s.currentPersona(), "preferences": prefs})
	case store.KeyCredential:
		// Only whether a key is stored ever leaves the process.
		c, err := s.prefs.Credential()
		if err != nil {
			rc.RespondError(CodeInternal, err.Error())
			return
		}
		rc.Respond(map[string]any{"key": p.Key, "set": c != ""})
	default:
		raw, ok, err := s.prefs.GetRaw(p.Key)
		switch {
		case errors.Is(err, store.ErrUnknownKey):
			rc.RespondError(CodeInvalidParams, err.Error())
		case err != nil:
			rc.RespondError(CodeInternal, err.Error())
		case !ok:
			rc.RespondError(CodeNotFound, "no value for "+p.Key)
		default:
			rc.Respond(map[string]any{"key": p.Key, "value": raw})
		}
	}
}

type prefsSetParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) rpcPrefsSet(rc *RequestContext) {
	var p prefsSetParams
	if !rc.Decode(&p) {
		return
	}
	if p.Key == "" || len(p.Value) == 0 {
		rc.RespondError(CodeInvalidParams, "key and value are required")
		return
	}
	if p.Key == store.KeySummary {
		rc.RespondError(CodeForbidden, "the summary is managed by the conversation")
		return
	}

	var persona domain.Persona
	if p.Key == store.KeyPersona {
		if err := json.Unmarshal(p.Value, &persona); err != nil || persona.Name == "" {
			rc.RespondError(CodeInvalidParams, "persona needs at least a name")
			return
		}
	}

	if err := s.prefs.SetRaw(p.Key, p.Value); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == store.KeyPersona {
		s.SetPersona(context.Background(), persona)
	}
	rc.Respond(map[string]any{"key": p.Key, "saved": true})
}

type voiceParams struct {
	Transcript string `json:"transcript"`
	// Send runs a heard command through chat and includes the reply.
	Send bool `json:"send,omitempty"`
}

func (s *Server) rpcVoiceTranscript(rc *RequestContext) {
	var p voiceParams
	if !rc.Decode(&p) {
		return
	}
	d := s.detector.Load()
	if d == nil {
		rc.RespondError(CodeUnavailable, "no wake word configured")
		return
	}

	cmd, heard := d.Scan(p.Transcript)
	out := map[string]any{"heard": heard, "command": cmd, "wakeWord": d.WakeWord()}
	if !heard || cmd == "" || !p.Send {
		rc.Respond(out)
		return
	}
	if why := s.unavailable(svcChat); why != "" {
		rc.RespondError(CodeUnavailable, why)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), llmCallTimeout)
	defer cancel()
	reply, err := s.runner.Send(ctx, cmd, nil)
	if err != nil {
		rc.RespondError(CodeAgentError, err.Error())
		return
	}
	out["reply"] = replyPayload(reply)
	rc.Respond(out)
}

type uploadParams struct {
	Name string `json:"name"`
	Data []byte `json:"data"` // base64 in JSON
}

func (s *Server) rpcUploadAttach(rc *RequestContext) {
	var p uploadParams
	if !rc.Decode(&p) {
		return
	}
	att, err := upload.FromReader(p.Name, bytes.NewReader(p.Data), s.cfg.Upload.MaxBytes)
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		rc.RespondError(CodeTooLarge, err.Error())
	case errors.Is(err, upload.ErrBinary):
		rc.RespondError(CodeUnsupportedType, err.Error())
	case err != nil:
		rc.RespondError(CodeInvalidParams, err.Error())
	default:
		rc.Respond(map[string]any{"attachment": att})
	}
}

func (s *Server) rpcSyncPush(rc *RequestContext) {
	ctx, cancel := context.WithTimeout(context.Background(), llmCallTimeout)
	defer cancel()

	conv, err := s.memory.Snapshot()
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	if err := s.syncer.PushConversation(ctx, conv); err != nil {
		rc.RespondError(CodeSyncError, err.Error())
		return
	}

	prefs := domain.DefaultPreferences()
	if s.prefs != nil {
		if prefs, err = s.prefs.Preferences(); err != nil {
			rc.RespondError(CodeInternal, err.Error())
			return
		}
	}
	if err := s.syncer.PushUser(ctx, s.currentPersona(), prefs); err != nil {
		rc.RespondError(CodeSyncError, err.Error())
		return
	}
	rc.Respond(map[string]any{"turns": len(conv.Turns), "userId": s.syncer.UserID()})
}
