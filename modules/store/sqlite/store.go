package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loopgate/loopgate/internal/convo"
)

// timeFormat is the stored timestamp layout.
const timeFormat = time.RFC3339Nano

// snapshotRecent mirrors the in-memory store's truncated view size.
const snapshotRecent = 5

// AppendMessage appends a message with a fresh timestamp, creating the
// session lazily.
func (s *Store) AppendMessage(sessionID string, role convo.Role, content string) error {
	if sessionID == "" {
		return convo.ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.TODO()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := touchSession(ctx, tx, sessionID, now); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, seq, role, content, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, string(role), content, now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit append: %w", err)
	}
	return nil
}

// Snapshot returns the truncated status view for the session.
func (s *Store) Snapshot(sessionID string) (convo.Snapshot, error) {
	ctx := context.TODO()

	createdAt, lastUpdated, err := s.sessionTimes(ctx, sessionID)
	if err != nil {
		return convo.Snapshot{}, err
	}

	snap := convo.Snapshot{CreatedAt: createdAt, LastUpdated: lastUpdated}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&snap.MessageCount)
	if err != nil {
		return convo.Snapshot{}, fmt.Errorf("sqlite: count messages: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM approvals WHERE session_id = ? AND status = ?",
		sessionID, string(convo.StatusPending),
	).Scan(&snap.PendingCount)
	if err != nil {
		return convo.Snapshot{}, fmt.Errorf("sqlite: count pending approvals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT seq, role, content, created_at FROM messages
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		sessionID, snapshotRecent,
	)
	if err != nil {
		return convo.Snapshot{}, fmt.Errorf("sqlite: recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap.RecentHistory, err = scanMessages(rows)
	if err != nil {
		return convo.Snapshot{}, err
	}
	return snap, nil
}

// History returns the complete message and approval sequences.
func (s *Store) History(sessionID string) (convo.State, error) {
	ctx := context.TODO()

	createdAt, lastUpdated, err := s.sessionTimes(ctx, sessionID)
	if err != nil {
		return convo.State{}, err
	}

	state := convo.State{CreatedAt: createdAt, LastUpdated: lastUpdated}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq",
		sessionID,
	)
	if err != nil {
		return convo.State{}, fmt.Errorf("sqlite: read messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if state.Messages, err = scanMessages(rows); err != nil {
		return convo.State{}, err
	}

	arows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_name, tool_args, reasoning, status, human_response, created_at, decided_at
		FROM approvals WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return convo.State{}, fmt.Errorf("sqlite: read approvals: %w", err)
	}
	defer func() { _ = arows.Close() }()

	if state.Approvals, err = scanApprovals(arows); err != nil {
		return convo.State{}, err
	}
	return state, nil
}

// AddApproval appends a pending approval with a fresh unique id.
func (s *Store) AddApproval(sessionID, toolName string, toolArgs json.RawMessage, reasoning string) (string, error) {
	if sessionID == "" {
		return "", convo.ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.TODO()
	now := time.Now().UTC()
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin add approval: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := touchSession(ctx, tx, sessionID, now); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approvals (id, session_id, seq, tool_name, tool_args, reasoning, status, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM approvals WHERE session_id = ?), ?, ?, ?, ?, ?)`,
		id, sessionID, sessionID, toolName, string(toolArgs), reasoning,
		string(convo.StatusPending), now.Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: add approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: commit add approval: %w", err)
	}
	return id, nil
}

// GetApproval returns the approval with the given id.
func (s *Store) GetApproval(sessionID, approvalID string) (convo.Approval, error) {
	ctx := context.TODO()

	if _, _, err := s.sessionTimes(ctx, sessionID); err != nil {
		return convo.Approval{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_name, tool_args, reasoning, status, human_response, created_at, decided_at
		FROM approvals WHERE session_id = ? AND id = ?`,
		sessionID, approvalID,
	)

	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return convo.Approval{}, convo.ErrApprovalNotFound
	}
	return a, err
}

// Resolve records a human decision on a pending approval. The transition
// is strictly pending → approved|rejected.
func (s *Store) Resolve(sessionID, approvalID string, decision convo.Decision, humanResponse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.TODO()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin resolve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: check session: %w", err)
	}
	if exists == 0 {
		return convo.ErrSessionNotFound
	}

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM approvals WHERE session_id = ? AND id = ?",
		sessionID, approvalID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return convo.ErrApprovalNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: read approval status: %w", err)
	}
	if convo.ApprovalStatus(status) != convo.StatusPending {
		return convo.ErrApprovalResolved
	}

	newStatus := convo.StatusRejected
	if decision == convo.DecisionApproved {
		newStatus = convo.StatusApproved
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approvals SET status = ?, human_response = ?, decided_at = ?
		WHERE session_id = ? AND id = ?`,
		string(newStatus), humanResponse, now.Format(timeFormat), sessionID, approvalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resolve approval: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET last_updated = ? WHERE id = ?",
		now.Format(timeFormat), sessionID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit resolve: %w", err)
	}
	return nil
}

// PendingApprovals returns approvals still awaiting a decision.
func (s *Store) PendingApprovals(sessionID string) ([]convo.Approval, error) {
	ctx := context.TODO()

	if _, _, err := s.sessionTimes(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_name, tool_args, reasoning, status, human_response, created_at, decided_at
		FROM approvals WHERE session_id = ? AND status = ? ORDER BY seq`,
		sessionID, string(convo.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read pending approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanApprovals(rows)
}

// Sessions returns the ids of all known sessions.
func (s *Store) Sessions() ([]string, error) {
	rows, err := s.db.QueryContext(context.TODO(), "SELECT id FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list sessions rows: %w", err)
	}
	return ids, nil
}

// Purge removes all state for a session.
func (s *Store) Purge(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.TODO()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM approvals WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("sqlite: purge session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit purge: %w", err)
	}
	return nil
}

// sessionTimes reads the session row, mapping absence to ErrSessionNotFound.
func (s *Store) sessionTimes(ctx context.Context, sessionID string) (created, updated time.Time, err error) {
	var createdStr, updatedStr string
	err = s.db.QueryRowContext(ctx,
		"SELECT created_at, last_updated FROM sessions WHERE id = ?", sessionID,
	).Scan(&createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, time.Time{}, convo.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: read session: %w", err)
	}

	if created, err = time.Parse(timeFormat, createdStr); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: parse created_at %q: %w", createdStr, err)
	}
	if updated, err = time.Parse(timeFormat, updatedStr); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: parse last_updated %q: %w", updatedStr, err)
	}
	return created, updated, nil
}

// touchSession upserts the session row and bumps last_updated.
func touchSession(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_updated = excluded.last_updated`,
		sessionID, now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert session: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]convo.Message, error) {
	var msgs []convo.Message
	for rows.Next() {
		var (
			m          convo.Message
			role       string
			createdStr string
		)
		if err := rows.Scan(&role, &m.Content, &createdStr); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.Role = convo.Role(role)

		t, err := time.Parse(timeFormat, createdStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse message timestamp %q: %w", createdStr, err)
		}
		m.Timestamp = t
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan messages rows: %w", err)
	}
	return msgs, nil
}

// approvalScanner matches both *sql.Row and *sql.Rows.
type approvalScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row approvalScanner) (convo.Approval, error) {
	var (
		a          convo.Approval
		args       string
		status     string
		createdStr string
		decidedStr sql.NullString
	)
	err := row.Scan(&a.ID, &a.ToolName, &args, &a.Reasoning, &status, &a.HumanResponse, &createdStr, &decidedStr)
	if err != nil {
		return convo.Approval{}, err
	}

	if args != "" {
		a.ToolArgs = json.RawMessage(args)
	}
	a.Status = convo.ApprovalStatus(status)

	if a.CreatedAt, err = time.Parse(timeFormat, createdStr); err != nil {
		return convo.Approval{}, fmt.Errorf("sqlite: parse approval created_at %q: %w", createdStr, err)
	}
	if decidedStr.Valid && decidedStr.String != "" {
		t, err := time.Parse(timeFormat, decidedStr.String)
		if err != nil {
			return convo.Approval{}, fmt.Errorf("sqlite: parse decided_at %q: %w", decidedStr.String, err)
		}
		a.DecidedAt = &t
	}
	return a, nil
}

func scanApprovals(rows *sql.Rows) ([]convo.Approval, error) {
	var approvals []convo.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan approvals rows: %w", err)
	}
	return approvals, nil
}
