// Package cloudsync mirrors local state to a hosted Firestore database so a
// user's conversation, profile and team workspace follow them across
// machines. Every write is a field-level merge.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/firestore/v1"
	"google.golang.org/api/option"

	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/logging"
)

// Collection names.
const (
	CollWorkspaces    = "workspaces"
	CollComments      = "comments"
	CollConversations = "conversations"
	CollUsers         = "users"
)

const (
	defaultUserID      = "local"
	defaultWorkspaceID = "default"
)

// Workspace is a shared team space.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Members   []string  `json:"members,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Comment is a note left by a workspace member on a shared item.
type Comment struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	AuthorID    string    `json:"authorId"`
	TargetID    string    `json:"targetId,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// Syncer writes documents to one Firestore database.
type Syncer struct {
	docs        *firestore.ProjectsDatabasesDocumentsService
	root        string
	userID      string
	workspaceID string
	log         *logging.Logger
	now         func() time.Time
}

// New creates a Syncer from cfg. Credentials come from cfg.CredentialsFile
// when set, otherwise from application default credentials. A configured
// endpoint (an emulator) is used without authentication. opts are applied
// last and override the above.
func New(ctx context.Context, cfg config.SyncConfig, log *logging.Logger, opts ...option.ClientOption) (*Syncer, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("sync: project id is required")
	}
	database := cfg.Database
	if database == "" {
		database = "(default)"
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case len(opts) == 0:
		ts, err := tokenSource(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := firestore.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sync: creating firestore client: %w", err)
	}

	userID := cfg.UserID
	if userID == "" {
		userID = defaultUserID
	}
	workspaceID := cfg.WorkspaceID
	if workspaceID == "" {
		workspaceID = defaultWorkspaceID
	}

	return &Syncer{
		docs:        svc.Projects.Databases.Documents,
		root:        fmt.Sprintf("projects/%s/databases/%s/documents", cfg.ProjectID, database),
		userID:      userID,
		workspaceID: workspaceID,
		log:         log.Sub("cloudsync"),
		now:         time.Now,
	}, nil
}

func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		ts, err := google.DefaultTokenSource(ctx, firestore.DatastoreScope)
		if err != nil {
			return nil, fmt.Errorf("sync: finding default credentials: %w", err)
		}
		return ts, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sync: reading credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, firestore.DatastoreScope)
	if err != nil {
		return nil, fmt.Errorf("sync: parsing credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// UserID returns the id documents are written under.
func (s *Syncer) UserID() string { return s.userID }

func (s *Syncer) docName(collection, id string) string {
	return s.root + "/" + collection + "/" + id
}

// merge writes fields into collection/id, leaving other fields untouched.
func (s *Syncer) merge(ctx context.Context, collection, id string, fields map[string]value) error {
	doc, err := toDocument(fields)
	if err != nil {
		return err
	}
	name := s.docName(collection, id)
	_, err = s.docs.Patch(name, doc).
		UpdateMaskFieldPaths(fieldPaths(fields)...).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sync: writing %s/%s: %w", collection, id, err)
	}
	s.log.Debug().Str("collection", collection).Str("id", id).Int("fields", len(fields)).Msg("document merged")
	return nil
}

// PushConversation mirrors the conversation to conversations/{user}.
func (s *Syncer) PushConversation(ctx context.Context, conv domain.Conversation) error {
	turns := make([]value, len(conv.Turns))
	for i, t := range conv.Turns {
		turns[i] = object(map[string]value{
			"id":        str(t.ID),
			"role":      str(t.Role),
			"text":      str(t.Text),
			"timestamp": timestamp(t.Timestamp),
		})
	}
	err := s.merge(ctx, CollConversations, s.userID, map[string]value{
		"turns":       array(turns...),
		"summary":     str(conv.Summary),
		"turnCount":   integer(int64(len(conv.Turns))),
		"workspaceId": str(s.workspaceID),
		"updatedAt":   timestamp(s.now()),
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("turns", len(conv.Turns)).Msg("conversation pushed")
	return nil
}

// PullConversation reads conversations/{user} back.
func (s *Syncer) PullConversation(ctx context.Context) (domain.Conversation, error) {
	doc, err := s.docs.Get(s.docName(CollConversations, s.userID)).Context(ctx).Do()
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("sync: reading conversation: %w", err)
	}
	w, err := fromDocument(doc)
	if err != nil {
		return domain.Conversation{}, err
	}

	conv := domain.Conversation{Summary: w.Fields["summary"].string(), Turns: []domain.Turn{}}
	if arr := w.Fields["turns"].ArrayValue; arr != nil {
		for i, v := range arr.Values {
			f := v.fields()
			at, err := f["timestamp"].time()
			if err != nil {
				return domain.Conversation{}, fmt.Errorf("sync: turn %d: %w", i, err)
			}
			conv.Turns = append(conv.Turns, domain.Turn{
				ID:        f["id"].string(),
				Role:      f["role"].string(),
				Text:      f["text"].string(),
				Timestamp: at,
			})
		}
	}
	return conv, nil
}

// PushUser mirrors the persona and presentation preferences to users/{user}.
// The API credential is never synced.
func (s *Syncer) PushUser(ctx context.Context, p domain.Persona, prefs domain.Preferences) error {
	return s.merge(ctx, CollUsers, s.userID, map[string]value{
		"persona": object(map[string]value{
			"name":               str(p.Name),
			"role":               str(p.Role),
			"personality":        str(p.Personality),
			"style":              str(p.Style),
			"customInstructions": str(p.CustomInstructions),
			"skills":             stringList(p.Skills),
			"wakeWord":           str(p.WakeWord),
		}),
		"theme": str(prefs.Theme),
		"accessibility": object(map[string]value{
			"fontScale":    double(prefs.Accessibility.FontScale),
			"highContrast": boolean(prefs.Accessibility.HighContrast),
			"reduceMotion": boolean(prefs.Accessibility.ReduceMotion),
		}),
		"updatedAt": timestamp(s.now()),
	})
}

// UpsertWorkspace writes workspace metadata. An empty ID means the
// configured workspace; an empty owner means the current user.
func (s *Syncer) UpsertWorkspace(ctx context.Context, ws Workspace) (Workspace, error) {
	if ws.ID == "" {
		ws.ID = s.workspaceID
	}
	if ws.OwnerID == "" {
		ws.OwnerID = s.userID
	}
	if strings.TrimSpace(ws.Name) == "" {
		return Workspace{}, errors.New("sync: workspace name is required")
	}
	ws.UpdatedAt = s.now().UTC()

	err := s.merge(ctx, CollWorkspaces, ws.ID, map[string]value{
		"name":      str(ws.Name),
		"ownerId":   str(ws.OwnerID),
		"members":   stringList(ws.Members),
		"updatedAt": timestamp(ws.UpdatedAt),
	})
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// AddComment stores a new comment in the configured workspace.
func (s *Syncer) AddComment(ctx context.Context, targetID, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, errors.New("sync: comment text is empty")
	}
	c := Comment{
		ID:          ulid.Make().String(),
		WorkspaceID: s.workspaceID,
		AuthorID:    s.userID,
		TargetID:    targetID,
		Text:        text,
		CreatedAt:   s.now().UTC(),
	}
	err := s.merge(ctx, CollComments, c.ID, map[string]value{
		"workspaceId": str(c.WorkspaceID),
		"authorId":    str(c.AuthorID),
		"targetId":    str(c.TargetID),
		"text":        str(c.Text),
		"createdAt":   timestamp(c.CreatedAt),
	})
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}
