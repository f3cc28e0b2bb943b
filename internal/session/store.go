package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ternlab/tern/internal/log"
)

// actionCols is the standard SELECT column list for scanActions.
const actionCols = `id, session_id, seq, kind, role, content,
	tool_name, tool_args, tool_call_id, is_error, created_at`

// Store manages the append-only action log backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines. Sequence numbers
// are assigned under a session row lock, so appends to one session
// serialize; appends to different sessions proceed independently.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger log.Logger
}

// NewStore creates a Store. dim is the embedding dimension enforced by
// AddEmbedding; it must match the vector(N) column width in the schema.
func NewStore(pool *pgxpool.Pool, dim int, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, dim: dim, logger: logger}, nil
}

// Dimension returns the configured embedding dimension.
func (s *Store) Dimension() int {
	return s.dim
}

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	id := uuid.New()
	sess := &Session{ID: id, Title: title}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, title) VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		id, title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", id, "title", title)
	return sess, nil
}

// GetSession retrieves a session by ID. Returns ErrNotFound if it does not
// exist.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions lists sessions ordered by updated_at descending.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// SetTitle updates a session's title. Returns ErrNotFound if the session
// does not exist.
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $1, updated_at = now() WHERE id = $2`,
		title, id,
	)
	if err != nil {
		return fmt.Errorf("setting title for session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddMessage appends a message action and returns its ID.
func (s *Store) AddMessage(ctx context.Context, sessionID uuid.UUID, role, content string) (uuid.UUID, error) {
	return s.append(ctx, Action{
		SessionID: sessionID,
		Kind:      KindMessage,
		Role:      role,
		Content:   content,
	})
}

// AddToolCall appends a tool_call action and returns its ID. args is the raw
// argument payload as requested by the model.
func (s *Store) AddToolCall(ctx context.Context, sessionID uuid.UUID, callID, name string, args json.RawMessage) (uuid.UUID, error) {
	return s.append(ctx, Action{
		SessionID:  sessionID,
		Kind:       KindToolCall,
		ToolName:   name,
		ToolArgs:   args,
		ToolCallID: callID,
	})
}

// AddToolResult appends a tool_result action and returns its ID. isError
// marks results that carry an error string instead of tool output.
func (s *Store) AddToolResult(ctx context.Context, sessionID uuid.UUID, callID, name, result string, isError bool) (uuid.UUID, error) {
	return s.append(ctx, Action{
		SessionID:  sessionID,
		Kind:       KindToolResult,
		Content:    result,
		ToolName:   name,
		ToolCallID: callID,
		IsError:    isError,
	})
}

// AddThinking appends a thinking action and returns its ID.
func (s *Store) AddThinking(ctx context.Context, sessionID uuid.UUID, content string) (uuid.UUID, error) {
	return s.append(ctx, Action{
		SessionID: sessionID,
		Kind:      KindThinking,
		Content:   content,
	})
}

// append inserts an action with the next sequence number for its session.
//
// The session row lock serializes appends per session, so sequence numbers
// are monotonic and gap-free for a single writer. Lock and MAX(seq) read
// happen in the same transaction as the insert.
func (s *Store) append(ctx context.Context, a Action) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if err := lockSession(ctx, tx, a.SessionID); err != nil {
		return uuid.Nil, err
	}

	var maxSeq int32
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM actions WHERE session_id = $1`,
		a.SessionID,
	).Scan(&maxSeq); err != nil {
		return uuid.Nil, fmt.Errorf("reading max sequence: %w", err)
	}

	id := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO actions (id, session_id, seq, kind, role, content, tool_name, tool_args, tool_call_id, is_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, a.SessionID, maxSeq+1, a.Kind,
		nullable(a.Role), a.Content,
		nullable(a.ToolName), a.ToolArgs, nullable(a.ToolCallID), a.IsError,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting %s action: %w", a.Kind, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`,
		a.SessionID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing action: %w", err)
	}

	s.logger.Debug("appended action",
		"session_id", a.SessionID, "kind", a.Kind, "seq", maxSeq+1)
	return id, nil
}

// lockSession takes the session row lock (SELECT ... FOR UPDATE) inside tx.
// Returns ErrNotFound if the session does not exist.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}
	return nil
}

// AddEmbedding attaches an embedding vector to an action. The vector length
// must match the configured dimension; mismatches are rejected before any
// write, never truncated or padded.
func (s *Store) AddEmbedding(ctx context.Context, actionID uuid.UUID, vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_embeddings (action_id, embedding) VALUES ($1, $2)`,
		actionID, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("inserting embedding for action %s: %w", actionID, err)
	}
	return nil
}

// History reconstructs the model-facing message list by replaying message
// actions in sequence order. Actions with an unrecognized role are skipped
// rather than failing the whole load. limit caps the number of messages
// returned (most recent kept); limit <= 0 means no cap.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM actions
		 WHERE session_id = $1 AND kind = $2
		 ORDER BY seq ASC`,
		sessionID, KindMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var role *string
		var content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if role == nil {
			continue
		}
		switch *role {
		case RoleUser, RoleAssistant, RoleSystem:
			messages = append(messages, Message{Role: *role, Content: content})
		default:
			s.logger.Warn("skipping message with unknown role",
				"session_id", sessionID, "role", *role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	if limit > 0 && int32(len(messages)) > limit {
		messages = messages[int32(len(messages))-limit:]
	}
	return messages, nil
}

// MessageCount returns the number of message actions in a session.
func (s *Store) MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM actions WHERE session_id = $1 AND kind = $2`,
		sessionID, KindMessage,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages for session %s: %w", sessionID, err)
	}
	return count, nil
}

// FirstUserMessage returns the content of the earliest user message in a
// session, or "" if none exists.
func (s *Store) FirstUserMessage(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM actions
		 WHERE session_id = $1 AND kind = $2 AND role = $3
		 ORDER BY seq ASC
		 LIMIT 1`,
		sessionID, KindMessage, RoleUser,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading first user message: %w", err)
	}
	return content, nil
}

// SearchSimilar returns the limit nearest message actions to the query
// vector by cosine similarity, most similar first.
func (s *Store) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]SearchResult, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	if limit <= 0 {
		limit = 5
	}

	qv := pgvector.NewVector(vec)
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.session_id, a.seq, a.kind, a.role, a.content,
		        a.tool_name, a.tool_args, a.tool_call_id, a.is_error, a.created_at,
		        1 - (e.embedding <=> $1) AS score
		 FROM action_embeddings e
		 JOIN actions a ON a.id = e.action_id
		 WHERE a.kind = $2
		 ORDER BY e.embedding <=> $1
		 LIMIT $3`,
		qv, KindMessage, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := scanAction(rows, &r.Action, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Actions returns all actions for a session in sequence order.
func (s *Store) Actions(ctx context.Context, sessionID uuid.UUID) ([]Action, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionCols+` FROM actions WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing actions for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := scanAction(rows, &a, nil); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

// scanAction reads one Action from a row with the actionCols column set,
// plus an optional trailing score column.
func scanAction(rows pgx.Rows, a *Action, score *float64) error {
	var role, toolName, toolCallID *string
	dest := []any{
		&a.ID, &a.SessionID, &a.Seq, &a.Kind, &role, &a.Content,
		&toolName, &a.ToolArgs, &toolCallID, &a.IsError, &a.CreatedAt,
	}
	if score != nil {
		dest = append(dest, score)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scanning action: %w", err)
	}
	if role != nil {
		a.Role = *role
	}
	if toolName != nil {
		a.ToolName = *toolName
	}
	if toolCallID != nil {
		a.ToolCallID = *toolCallID
	}
	return nil
}

// nullable maps "" to a NULL parameter.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
