//go:build integration
// +build integration

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/testutil"
)

var sharedDB *testutil.TestDB

// embeddingDim matches the vector(768) column in migration 0001.
const embeddingDim = 768

// vec pads the given leading values with zeros to the schema's embedding
// width. Zero padding preserves cosine relationships between the vectors.
func vec(vals ...float32) []float32 {
	v := make([]float32, embeddingDim)
	copy(v, vals)
	return v
}

func TestMain(m *testing.M) {
	db, cleanup, err := testutil.SetupTestDBForMain()
	if err != nil {
		fmt.Println("skipping integration tests:", err)
		os.Exit(0)
	}
	sharedDB = db
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	testutil.CleanTables(t, sharedDB.Pool)
	store, err := NewStore(sharedDB.Pool, embeddingDim, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if sess.ID == uuid.Nil {
		t.Fatal("CreateSession() returned nil ID")
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("GetSession() ID = %s, want %s", got.ID, sess.ID)
	}

	if err := store.SetTitle(ctx, sess.ID, "quadratic equations"); err != nil {
		t.Fatalf("SetTitle() error: %v", err)
	}
	got, err = store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() after SetTitle error: %v", err)
	}
	if got.Title != "quadratic equations" {
		t.Errorf("Title = %q, want %q", got.Title, "quadratic equations")
	}

	sessions, err := store.ListSessions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("ListSessions() count = %d, want 1", len(sessions))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession(random) = %v, want ErrNotFound", err)
	}

	if err := store.SetTitle(context.Background(), uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTitle(random) = %v, want ErrNotFound", err)
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddMessage(context.Background(), uuid.New(), RoleUser, "hello")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AddMessage(unknown session) = %v, want ErrNotFound", err)
	}
}

// Sequence numbers must be monotonic and gap-free across all action kinds.
func TestSequenceNumbers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "read a file for me"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleAssistant, " "); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddToolCall(ctx, sess.ID, "call-1", "read_file", json.RawMessage(`{"path":"a.txt"}`)); err != nil {
		t.Fatalf("AddToolCall() error: %v", err)
	}
	if _, err := store.AddToolResult(ctx, sess.ID, "call-1", "read_file", "contents", false); err != nil {
		t.Fatalf("AddToolResult() error: %v", err)
	}
	if _, err := store.AddThinking(ctx, sess.ID, "the user wants a.txt"); err != nil {
		t.Fatalf("AddThinking() error: %v", err)
	}

	actions, err := store.Actions(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Actions() error: %v", err)
	}
	if len(actions) != 5 {
		t.Fatalf("Actions() count = %d, want 5", len(actions))
	}
	for i, a := range actions {
		if a.Seq != int32(i+1) {
			t.Errorf("action %d seq = %d, want %d", i, a.Seq, i+1)
		}
	}

	wantKinds := []Kind{KindMessage, KindMessage, KindToolCall, KindToolResult, KindThinking}
	for i, want := range wantKinds {
		if actions[i].Kind != want {
			t.Errorf("action %d kind = %s, want %s", i, actions[i].Kind, want)
		}
	}
}

// Replaying history must reproduce message roles and ordering exactly,
// skipping tool and thinking actions and unknown roles.
func TestHistory_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "what's 2+2"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddThinking(ctx, sess.ID, "simple arithmetic"); err != nil {
		t.Fatalf("AddThinking() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleAssistant, "4"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	// A role this version doesn't recognize must be skipped, not fail the load.
	if _, err := store.AddMessage(ctx, sess.ID, "narrator", "meanwhile..."); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "and 3+3?"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	history, err := store.History(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}

	want := []Message{
		{Role: RoleUser, Content: "what's 2+2"},
		{Role: RoleAssistant, Content: "4"},
		{Role: RoleUser, Content: "and 3+3?"},
	}
	if len(history) != len(want) {
		t.Fatalf("History() count = %d, want %d", len(history), len(want))
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, history[i], want[i])
		}
	}
}

func TestHistory_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	for i := 0; i < 6; i++ {
		if _, err := store.AddMessage(ctx, sess.ID, RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("AddMessage() error: %v", err)
		}
	}

	history, err := store.History(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History(limit=2) count = %d, want 2", len(history))
	}
	// The most recent messages are kept.
	if history[0].Content != "msg 4" || history[1].Content != "msg 5" {
		t.Errorf("History(limit=2) = %v, want last two messages", history)
	}
}

func TestAddEmbedding_RejectsWrongLengthWithoutWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	actionID, err := store.AddMessage(ctx, sess.ID, RoleUser, "hello")
	if err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	if err := store.AddEmbedding(ctx, actionID, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("AddEmbedding(len=2) = %v, want ErrDimensionMismatch", err)
	}

	var count int
	if err := sharedDB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM action_embeddings`).Scan(&count); err != nil {
		t.Fatalf("counting embeddings: %v", err)
	}
	if count != 0 {
		t.Errorf("embedding rows after rejected insert = %d, want 0", count)
	}

	if err := store.AddEmbedding(ctx, actionID, vec(1)); err != nil {
		t.Fatalf("AddEmbedding(correct length) error: %v", err)
	}
}

func TestSearchSimilar_OrdersByCosineSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	add := func(content string, vec []float32) {
		t.Helper()
		id, err := store.AddMessage(ctx, sess.ID, RoleUser, content)
		if err != nil {
			t.Fatalf("AddMessage(%q) error: %v", content, err)
		}
		if err := store.AddEmbedding(ctx, id, vec); err != nil {
			t.Fatalf("AddEmbedding(%q) error: %v", content, err)
		}
	}

	add("exact", vec(1, 0, 0))
	add("close", vec(0.9, 0.1, 0))
	add("orthogonal", vec(0, 1, 0))

	results, err := store.SearchSimilar(ctx, vec(1, 0, 0), 2)
	if err != nil {
		t.Fatalf("SearchSimilar() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchSimilar() count = %d, want 2", len(results))
	}
	if results[0].Action.Content != "exact" {
		t.Errorf("results[0] = %q, want %q", results[0].Action.Content, "exact")
	}
	if results[1].Action.Content != "close" {
		t.Errorf("results[1] = %q, want %q", results[1].Action.Content, "close")
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %f < %f", results[0].Score, results[1].Score)
	}
	if results[0].Score < 0.999 {
		t.Errorf("exact match score = %f, want ~1.0", results[0].Score)
	}
}

// Only message actions are searchable; embeddings attached to other action
// kinds must never surface in results.
func TestSearchSimilar_ReturnsMessagesOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	msgID, err := store.AddMessage(ctx, sess.ID, RoleUser, "the message")
	if err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if err := store.AddEmbedding(ctx, msgID, vec(0.5, 0.5)); err != nil {
		t.Fatalf("AddEmbedding(message) error: %v", err)
	}

	thinkID, err := store.AddThinking(ctx, sess.ID, "the trace")
	if err != nil {
		t.Fatalf("AddThinking() error: %v", err)
	}
	// A perfect match on a non-message action must still lose to the message.
	if err := store.AddEmbedding(ctx, thinkID, vec(1, 0)); err != nil {
		t.Fatalf("AddEmbedding(thinking) error: %v", err)
	}

	results, err := store.SearchSimilar(ctx, vec(1, 0), 10)
	if err != nil {
		t.Fatalf("SearchSimilar() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchSimilar() count = %d, want 1 (messages only)", len(results))
	}
	if results[0].Action.ID != msgID {
		t.Errorf("SearchSimilar() returned action %s, want message %s", results[0].Action.ID, msgID)
	}
	if results[0].Action.Kind != KindMessage {
		t.Errorf("SearchSimilar() kind = %s, want %s", results[0].Action.Kind, KindMessage)
	}
}

func TestFirstUserMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	got, err := store.FirstUserMessage(ctx, sess.ID)
	if err != nil {
		t.Fatalf("FirstUserMessage() on empty session error: %v", err)
	}
	if got != "" {
		t.Errorf("FirstUserMessage() on empty session = %q, want \"\"", got)
	}

	if _, err := store.AddMessage(ctx, sess.ID, RoleAssistant, "hi there"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "first question"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "second question"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	got, err = store.FirstUserMessage(ctx, sess.ID)
	if err != nil {
		t.Fatalf("FirstUserMessage() error: %v", err)
	}
	if got != "first question" {
		t.Errorf("FirstUserMessage() = %q, want %q", got, "first question")
	}
}

func TestMessageCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	if _, err := store.AddMessage(ctx, sess.ID, RoleUser, "a"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if _, err := store.AddToolCall(ctx, sess.ID, "c1", "t", nil); err != nil {
		t.Fatalf("AddToolCall() error: %v", err)
	}
	if _, err := store.AddMessage(ctx, sess.ID, RoleAssistant, "b"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	count, err := store.MessageCount(ctx, sess.ID)
	if err != nil {
		t.Fatalf("MessageCount() error: %v", err)
	}
	if count != 2 {
		t.Errorf("MessageCount() = %d, want 2 (tool actions excluded)", count)
	}
}
