package cloudsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/hooks"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const docRoot = "/v1/projects/proj/databases/testdb/documents/"

type write struct {
	path   string
	mask   []string
	fields map[string]value
}

// fakeFirestore stores merged documents in memory.
type fakeFirestore struct {
	mu     sync.Mutex
	docs   map[string]map[string]value
	writes []write
}

func newFakeFirestore(t *testing.T) (*fakeFirestore, *httptest.Server) {
	t.Helper()
	f := &fakeFirestore{docs: make(map[string]map[string]value)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeFirestore) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		var doc wireDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mask := r.URL.Query()["updateMask.fieldPaths"]
		f.writes = append(f.writes, write{path: r.URL.Path, mask: mask, fields: doc.Fields})

		stored := f.docs[r.URL.Path]
		if stored == nil {
			stored = make(map[string]value)
		}
		for _, k := range mask {
			stored[k] = doc.Fields[k]
		}
		f.docs[r.URL.Path] = stored
		_ = json.NewEncoder(w).Encode(wireDoc{Name: strings.TrimPrefix(r.URL.Path, "/v1/"), Fields: stored})

	case http.MethodGet:
		stored, ok := f.docs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found","status":"NOT_FOUND"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(wireDoc{Name: strings.TrimPrefix(r.URL.Path, "/v1/"), Fields: stored})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeFirestore) lastWrite(t *testing.T) write {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.writes)
	return f.writes[len(f.writes)-1]
}

func (f *fakeFirestore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func testSyncer(t *testing.T, srv *httptest.Server) *Syncer {
	t.Helper()
	cfg := config.SyncConfig{Enabled: true, ProjectID: "proj", Database: "testdb", UserID: "u1", WorkspaceID: "team"}
	s, err := New(context.Background(), cfg, logging.New(nil, "silent"),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), config.SyncConfig{}, logging.New(nil, "silent"))
	assert.Error(t, err)
}

func TestNewWithEmulatorEndpoint(t *testing.T) {
	fake, srv := newFakeFirestore(t)
	s, err := New(context.Background(), config.SyncConfig{ProjectID: "proj", Database: "testdb", Endpoint: srv.URL + "/"}, logging.New(nil, "silent"))
	require.NoError(t, err)
	assert.Equal(t, "local", s.UserID())

	require.NoError(t, s.PushConversation(context.Background(), domain.Conversation{}))
	assert.Equal(t, docRoot+"conversations/local", fake.lastWrite(t).path)
}

func TestPushConversationMerges(t *testing.T) {
	fake, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)

	at := time.Date(2026, 4, 30, 8, 15, 0, 0, time.UTC)
	conv := domain.Conversation{
		Turns: []domain.Turn{
			{ID: "01A", Role: domain.RoleUser, Text: "hello", Timestamp: at},
			{ID: "01B", Role: domain.RoleModel, Text: "hi", Timestamp: at.Add(time.Second)},
		},
		Summary: "Greetings exchanged.",
	}
	require.NoError(t, s.PushConversation(context.Background(), conv))

	w := fake.lastWrite(t)
	assert.Equal(t, docRoot+"conversations/u1", w.path)
	assert.Equal(t, []string{"summary", "turnCount", "turns", "updatedAt", "workspaceId"}, w.mask)
	assert.Equal(t, "Greetings exchanged.", w.fields["summary"].string())
	assert.Equal(t, "team", w.fields["workspaceId"].string())
	require.NotNil(t, w.fields["turnCount"].IntegerValue)
	assert.Equal(t, "2", *w.fields["turnCount"].IntegerValue)

	turns := w.fields["turns"].ArrayValue
	require.NotNil(t, turns)
	require.Len(t, turns.Values, 2)
	first := turns.Values[0].fields()
	assert.Equal(t, "01A", first["id"].string())
	assert.Equal(t, "2026-04-30T08:15:00Z", first["timestamp"].TimestampValue)
}

func TestPullConversationRoundTrip(t *testing.T) {
	_, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)
	ctx := context.Background()

	at := time.Date(2026, 4, 30, 8, 15, 0, 5000, time.UTC)
	conv := domain.Conversation{
		Turns: []domain.Turn{
			{ID: "01A", Role: domain.RoleUser, Text: "remember the budget", Timestamp: at},
		},
		Summary: "Budget discussion.",
	}
	require.NoError(t, s.PushConversation(ctx, conv))

	got, err := s.PullConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, conv, got)
}

func TestPullConversationMissing(t *testing.T) {
	_, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)

	_, err := s.PullConversation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading conversation")
}

func TestPushUser(t *testing.T) {
	fake, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)

	p := domain.Persona{Name: "Nova", Role: "Analyst", Skills: []string{"sql", "charts"}}
	prefs := domain.Preferences{Theme: "dark", Accessibility: domain.Accessibility{FontScale: 1.5, HighContrast: true}}
	require.NoError(t, s.PushUser(context.Background(), p, prefs))

	w := fake.lastWrite(t)
	assert.Equal(t, docRoot+"users/u1", w.path)
	assert.Equal(t, []string{"accessibility", "persona", "theme", "updatedAt"}, w.mask)
	assert.Equal(t, "dark", w.fields["theme"].string())

	persona := w.fields["persona"].fields()
	assert.Equal(t, "Nova", persona["name"].string())
	assert.Equal(t, []string{"sql", "charts"}, persona["skills"].strings())

	acc := w.fields["accessibility"].fields()
	require.NotNil(t, acc["fontScale"].DoubleValue)
	assert.InDelta(t, 1.5, *acc["fontScale"].DoubleValue, 1e-9)
	require.NotNil(t, acc["highContrast"].BooleanValue)
	assert.True(t, *acc["highContrast"].BooleanValue)

	_, hasKey := w.fields["credential"]
	assert.False(t, hasKey, "credentials are never synced")
}

func TestUpsertWorkspace(t *testing.T) {
	fake, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)

	_, err := s.UpsertWorkspace(context.Background(), Workspace{})
	assert.Error(t, err)

	ws, err := s.UpsertWorkspace(context.Background(), Workspace{Name: "Launch team", Members: []string{"u1", "u2"}})
	require.NoError(t, err)
	assert.Equal(t, "team", ws.ID)
	assert.Equal(t, "u1", ws.OwnerID)
	assert.False(t, ws.UpdatedAt.IsZero())

	w := fake.lastWrite(t)
	assert.Equal(t, docRoot+"workspaces/team", w.path)
	assert.Equal(t, []string{"u1", "u2"}, w.fields["members"].strings())
}

func TestAddComment(t *testing.T) {
	fake, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)

	_, err := s.AddComment(context.Background(), "01A", "  ")
	assert.Error(t, err)

	c, err := s.AddComment(context.Background(), "01A", "Looks right to me.")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "team", c.WorkspaceID)
	assert.Equal(t, "u1", c.AuthorID)

	w := fake.lastWrite(t)
	assert.Equal(t, docRoot+"comments/"+c.ID, w.path)
	assert.Equal(t, "Looks right to me.", w.fields["text"].string())
	assert.Equal(t, "01A", w.fields["targetId"].string())
}

func TestAutoPush(t *testing.T) {
	old := PushDelay
	PushDelay = 10 * time.Millisecond
	t.Cleanup(func() { PushDelay = old })

	fake, srv := newFakeFirestore(t)
	s := testSyncer(t, srv)
	hm := hooks.NewManager(logging.New(nil, "silent"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var snapshots sync.WaitGroup
	snapshots.Add(1)
	var once sync.Once
	s.AutoPush(ctx, hm, func() (domain.Conversation, error) {
		once.Do(snapshots.Done)
		return domain.Conversation{Summary: "auto"}, nil
	})

	// A burst of events coalesces into few pushes.
	for range 5 {
		hm.Emit(ctx, hooks.EventTurnAppended, nil)
	}
	snapshots.Wait()

	require.Eventually(t, func() bool { return fake.writeCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, fake.writeCount(), 2)
	assert.Equal(t, "auto", fake.lastWrite(t).fields["summary"].string())
}
