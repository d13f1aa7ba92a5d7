package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// wrapLookup converts pgx's no-rows error into the package sentinel.
func wrapLookup(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Postgres is the pgx-backed repository for all durable chat state.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// --- Users ---

// CreateUser inserts a new account with the given username and session ID.
func (p *Postgres) CreateUser(ctx context.Context, username, sessionID string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (username, session_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, session_id, avatar_url, status, last_active, created_at`,
		username, sessionID, StatusOffline,
	).Scan(&u.ID, &u.Username, &u.SessionID, &u.AvatarURL, &u.Status, &u.LastActive, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID fetches a user by durable identifier.
func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	return p.getUser(ctx,
		`SELECT id, username, session_id, avatar_url, status, last_active, created_at
		 FROM users WHERE id = $1`, id)
}

// GetUserBySessionID fetches a user by their pairing code.
func (p *Postgres) GetUserBySessionID(ctx context.Context, sessionID string) (User, error) {
	return p.getUser(ctx,
		`SELECT id, username, session_id, avatar_url, status, last_active, created_at
		 FROM users WHERE session_id = $1`, sessionID)
}

func (p *Postgres) getUser(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.SessionID, &u.AvatarURL, &u.Status, &u.LastActive, &u.CreatedAt)
	if err != nil {
		return User{}, wrapLookup("get user", err)
	}
	return u, nil
}

// --- Presence ---

// UpdatePresence writes the durable presence record for a user.
func (p *Postgres) UpdatePresence(ctx context.Context, userID, status string, lastActive *time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET status = $2, last_active = $3 WHERE id = $1`,
		userID, status, lastActive,
	)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

// GetPresence reads the durable presence record for a user.
func (p *Postgres) GetPresence(ctx context.Context, userID string) (Presence, error) {
	var pr Presence
	err := p.pool.QueryRow(ctx,
		`SELECT status, last_active FROM users WHERE id = $1`, userID,
	).Scan(&pr.Status, &pr.LastActive)
	if err != nil {
		return Presence{}, wrapLookup("get presence", err)
	}
	return pr, nil
}

// --- Friends ---

// AddFriend records a mutual friendship: both directions in one statement so
// the pair can never end up half-linked. Re-adding an existing friend is a
// no-op.
func (p *Postgres) AddFriend(ctx context.Context, userID, friendID string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO friendships (user_id, friend_id)
		 VALUES ($1, $2), ($2, $1)
		 ON CONFLICT (user_id, friend_id) DO NOTHING`,
		userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

// ListFriends returns the user's friends, most recently added first.
func (p *Postgres) ListFriends(ctx context.Context, userID string) ([]User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT u.id, u.username, u.session_id, u.avatar_url, u.status, u.last_active, u.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.SessionID, &u.AvatarURL,
			&u.Status, &u.LastActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RemoveFriend severs the friendship in both directions. Removing a
// non-friend is a no-op.
func (p *Postgres) RemoveFriend(ctx context.Context, userID, friendID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM friendships
		 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// --- Conversations ---

// CreateConversation inserts the conversation row for a participant pair,
// normalizing participant order. If the pair already has a conversation the
// existing row is returned instead.
func (p *Postgres) CreateConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	a, b := userA, userB
	if b < a {
		a, b = b, a
	}

	var c Conversation
	err := p.pool.QueryRow(ctx,
		`INSERT INTO conversations (participant_a, participant_b)
		 VALUES ($1, $2)
		 ON CONFLICT (participant_a, participant_b) DO UPDATE SET participant_a = EXCLUDED.participant_a
		 RETURNING id, participant_a, participant_b, last_message_id, created_at`,
		a, b,
	).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// GetConversation fetches a conversation by ID.
func (p *Postgres) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := p.pool.QueryRow(ctx,
		`SELECT id, participant_a, participant_b, last_message_id, created_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.CreatedAt)
	if err != nil {
		return Conversation{}, wrapLookup("get conversation", err)
	}
	return c, nil
}

// ListConversations returns every conversation the user takes part in, newest
// activity first, each with its latest message, the peer profile and the
// caller's unread count.
func (p *Postgres) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.id, c.participant_a, c.participant_b, c.last_message_id, c.created_at,
		        u.id, u.username, u.session_id, u.avatar_url, u.status, u.last_active, u.created_at,
		        m.id, m.sender_id, m.content, m.created_at,
		        COALESCE(cu.count, 0)
		 FROM conversations c
		 JOIN users u
		   ON u.id = CASE WHEN c.participant_a = $1 THEN c.participant_b ELSE c.participant_a END
		 LEFT JOIN messages m ON m.id = c.last_message_id
		 LEFT JOIN conversation_unread cu ON cu.conversation_id = c.id AND cu.user_id = $1
		 WHERE c.participant_a = $1 OR c.participant_b = $1
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		var msgID, msgSender, msgContent *string
		var msgCreated *time.Time

		err := rows.Scan(
			&s.Conversation.ID, &s.Conversation.ParticipantA, &s.Conversation.ParticipantB,
			&s.Conversation.LastMessageID, &s.Conversation.CreatedAt,
			&s.Peer.ID, &s.Peer.Username, &s.Peer.SessionID, &s.Peer.AvatarURL,
			&s.Peer.Status, &s.Peer.LastActive, &s.Peer.CreatedAt,
			&msgID, &msgSender, &msgContent, &msgCreated,
			&s.Unread,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}

		if msgID != nil {
			s.LastMessage = &Message{
				ID:             *msgID,
				ConversationID: s.Conversation.ID,
				SenderID:       *msgSender,
				Content:        *msgContent,
				CreatedAt:      *msgCreated,
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Messages ---

// CreateMessage persists a message with a caller-assigned ID. The creation
// timestamp is assigned by the database and returned on the stored copy.
func (p *Postgres) CreateMessage(ctx context.Context, m Message) (Message, error) {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, reply_to)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.ReplyTo,
	).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// GetMessage fetches a single message by ID. The read set is not attached;
// callers needing it go through ListMessages.
func (p *Postgres) GetMessage(ctx context.Context, id string) (Message, error) {
	var m Message
	err := p.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, content, reply_to, created_at
		 FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.ReplyTo, &m.CreatedAt)
	if err != nil {
		return Message{}, wrapLookup("get message", err)
	}
	return m, nil
}

// TouchConversation advances the conversation's last-message pointer and bumps
// the unread counter for every participant except the sender. The increment is
// a single atomic UPSERT so concurrent sends to the same conversation never
// lose counts.
func (p *Postgres) TouchConversation(ctx context.Context, conversationID, messageID, senderID string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2 WHERE id = $1`,
		conversationID, messageID,
	)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_unread (conversation_id, user_id, count)
		 SELECT c.id, u.uid, 1
		 FROM conversations c,
		      LATERAL (VALUES (c.participant_a), (c.participant_b)) AS u(uid)
		 WHERE c.id = $1 AND u.uid <> $2
		 ON CONFLICT (conversation_id, user_id)
		 DO UPDATE SET count = conversation_unread.count + 1`,
		conversationID, senderID,
	)
	if err != nil {
		return fmt.Errorf("bump unread: %w", err)
	}

	return tx.Commit(ctx)
}

// ListMessages returns up to limit messages created strictly before the given
// time, oldest first, with sender names resolved and read sets attached.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.reply_to, m.created_at,
		        COALESCE(array_agg(r.user_id::text) FILTER (WHERE r.user_id IS NOT NULL), '{}')
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 LEFT JOIN message_reads r ON r.message_id = m.id
		 WHERE m.conversation_id = $1 AND m.created_at < $2
		 GROUP BY m.id, u.username
		 ORDER BY m.created_at DESC
		 LIMIT $3`,
		conversationID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName,
			&m.Content, &m.ReplyTo, &m.CreatedAt, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Clients sort by timestamp; serve history oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkMessageRead appends the user to the message's read set. Re-reading is a
// no-op, keeping the set monotone.
func (p *Postgres) MarkMessageRead(ctx context.Context, messageID, userID string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// MarkConversationRead marks every message in the conversation as read by the
// user and resets their unread counter.
func (p *Postgres) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 SELECT m.id, $2 FROM messages m
		 WHERE m.conversation_id = $1 AND m.sender_id <> $2
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert reads: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_unread (conversation_id, user_id, count)
		 VALUES ($1, $2, 0)
		 ON CONFLICT (conversation_id, user_id) DO UPDATE SET count = 0`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}

	return tx.Commit(ctx)
}
