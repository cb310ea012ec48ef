// Package store is the persistence collaborator: plain CRUD over the
// backend's conversation tables. The relay core never imports it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sageteck/tuneup-relay/internal/domain"
)

// ErrNotParticipant means the user has no participant row in the
// conversation.
var ErrNotParticipant = errors.New("user is not a participant of the conversation")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type Participant struct {
	ID           int64  `json:"id"`
	StudentID    *int64 `json:"student_id"`
	InstructorID *int64 `json:"instructor_id"`
}

type LatestMessage struct {
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
	Type    string    `json:"type"`
}

type ConversationSummary struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Name          *string        `json:"name"`
	Participants  []Participant  `json:"participants"`
	LatestMessage *LatestMessage `json:"latest_message"`
	UnreadCount   int            `json:"unread_count"`
}

type Message struct {
	ID            int64       `json:"id"`
	Content       string      `json:"content"`
	Type          string      `json:"type"`
	AttachmentURL *string     `json:"attachment_url"`
	SentAt        time.Time   `json:"sent_at"`
	ReadAt        *time.Time  `json:"read_at"`
	Sender        Participant `json:"sender"`
}

// ParticipantColumn maps a role onto the participant table column holding
// that role's user id.
func ParticipantColumn(role domain.Role) string {
	if role.IsStudent() {
		return "student_id"
	}
	return "instructor_id"
}

// UserConversations lists the conversations a user participates in, each
// with the other participants, the latest message and an unread count.
func (s *Store) UserConversations(ctx context.Context, userID domain.UserID, role domain.Role) ([]ConversationSummary, error) {
	col := ParticipantColumn(role)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT c.id, c.type, c.name
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.%s = $1 AND p.left_at IS NULL
		ORDER BY c.updated_at DESC`, col), int64(userID))
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Type, &cs.Name); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	for i := range out {
		if err := s.fillConversation(ctx, &out[i], userID, role); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) fillConversation(ctx context.Context, cs *ConversationSummary, userID domain.UserID, role domain.Role) error {
	col := ParticipantColumn(role)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, student_id, instructor_id
		FROM conversation_participants
		WHERE conversation_id = $1 AND (%s IS DISTINCT FROM $2)`, col),
		cs.ID, int64(userID))
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.StudentID, &p.InstructorID); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		cs.Participants = append(cs.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}

	var latest LatestMessage
	err = s.pool.QueryRow(ctx, `
		SELECT m.content, m.sent_at, m.type
		FROM messages m
		JOIN conversation_participants p ON p.id = m.participant_id
		WHERE p.conversation_id = $1
		ORDER BY m.sent_at DESC
		LIMIT 1`, cs.ID).Scan(&latest.Content, &latest.SentAt, &latest.Type)
	switch {
	case err == nil:
		cs.LatestMessage = &latest
	case errors.Is(err, pgx.ErrNoRows):
		// empty conversation
	default:
		return fmt.Errorf("query latest message: %w", err)
	}

	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*)
		FROM messages m
		JOIN conversation_participants p ON p.id = m.participant_id
		WHERE p.conversation_id = $1
		  AND (p.%s IS DISTINCT FROM $2)
		  AND m.read_at IS NULL`, col),
		cs.ID, int64(userID)).Scan(&cs.UnreadCount)
	if err != nil {
		return fmt.Errorf("query unread count: %w", err)
	}
	return nil
}

// ConversationMessages returns a page of messages, newest first.
func (s *Store) ConversationMessages(ctx context.Context, conversationID domain.ConversationID, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.content, m.type, m.attachment_url, m.sent_at, m.read_at,
		       p.id, p.student_id, p.instructor_id
		FROM messages m
		JOIN conversation_participants p ON p.id = m.participant_id
		WHERE p.conversation_id = $1
		ORDER BY m.sent_at DESC
		LIMIT $2 OFFSET $3`, int64(conversationID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Type, &m.AttachmentURL, &m.SentAt, &m.ReadAt,
			&m.Sender.ID, &m.Sender.StudentID, &m.Sender.InstructorID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// InsertMessage persists a message sent by the user's participant row.
func (s *Store) InsertMessage(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID, role domain.Role, content, msgType string, attachmentURL *string) (*Message, error) {
	pid, err := s.participantID(ctx, conversationID, userID, role)
	if err != nil {
		return nil, err
	}

	if msgType == "" {
		msgType = "text"
	}
	m := Message{Content: content, Type: msgType, AttachmentURL: attachmentURL}
	m.Sender.ID = pid
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (participant_id, content, type, attachment_url, sent_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, sent_at`, pid, content, msgType, attachmentURL).Scan(&m.ID, &m.SentAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

// MarkRead marks every unread message from the other participants as read
// and reports how many rows changed.
func (s *Store) MarkRead(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID, role domain.Role) (int64, error) {
	pid, err := s.participantID(ctx, conversationID, userID, role)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET read_at = now()
		WHERE read_at IS NULL
		  AND participant_id IN (
			SELECT id FROM conversation_participants
			WHERE conversation_id = $1 AND id <> $2
		  )`, int64(conversationID), pid)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) participantID(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID, role domain.Role) (int64, error) {
	var pid int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id FROM conversation_participants
		WHERE conversation_id = $1 AND %s = $2`, ParticipantColumn(role)),
		int64(conversationID), int64(userID)).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotParticipant
	}
	if err != nil {
		return 0, fmt.Errorf("query participant: %w", err)
	}
	return pid, nil
}
