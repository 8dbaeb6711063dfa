package devserver

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sesmanagement/discussions/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	picture    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	sender_id    TEXT NOT NULL REFERENCES users(id),
	receiver_id  TEXT NOT NULL REFERENCES users(id),
	sender_name  TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	media_url    TEXT NOT NULL DEFAULT '',
	message_type TEXT NOT NULL DEFAULT 'text',
	is_seen      BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at);
`

const messageColumns = `id, sender_id, receiver_id, sender_name, content, media_url, message_type, is_seen, created_at`

// PostgresStore is the Store backed by a PostgreSQL database
type PostgresStore struct {
	*sql.DB
}

// NewPostgresStore connects and creates the tables if they are missing
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db}, nil
}

func (db *PostgresStore) CreateUser(u User) error {
	_, err := db.Exec(
		"INSERT INTO users (id, first_name, last_name, picture) VALUES ($1, $2, $3, $4)",
		u.ID, u.FirstName, u.LastName, u.Picture,
	)
	return err
}

func (db *PostgresStore) GetUserByID(id string) (*User, error) {
	var u User
	err := db.QueryRow(
		"SELECT id, first_name, last_name, picture FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Picture)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *PostgresStore) ListUsers() ([]User, error) {
	rows, err := db.Query("SELECT id, first_name, last_name, picture FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Picture); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *PostgresStore) ChatUsers(userID string) ([]models.Contact, error) {
	rows, err := db.Query(`
		SELECT u.id, u.first_name, u.last_name, u.picture,
		       COALESCE(last.content, ''), COALESCE(last.media_url, ''), COALESCE(last.message_type, ''),
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.sender_id = u.id AND m.receiver_id = $1 AND NOT m.is_seen)
		FROM users u
		LEFT JOIN LATERAL (
			SELECT content, media_url, message_type, created_at
			FROM messages m
			WHERE (m.sender_id = u.id AND m.receiver_id = $1)
			   OR (m.sender_id = $1 AND m.receiver_id = u.id)
			ORDER BY m.created_at DESC
			LIMIT 1
		) last ON true
		WHERE u.id <> $1
		ORDER BY last.created_at DESC NULLS LAST, lower(u.first_name)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat users: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var last models.Message
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Picture,
			&last.Content, &last.MediaURL, &last.Type, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat user row: %w", err)
		}
		c.LastMessage = last.Preview()
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat user rows: %w", err)
	}
	return contacts, nil
}

func (db *PostgresStore) CreateMessage(senderID, receiverID string, req models.SendRequest) (*models.Message, error) {
	sender, err := db.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}
	if _, err := db.GetUserByID(receiverID); err != nil {
		return nil, err
	}

	// postgres keeps microseconds; truncate so the returned record matches a re-read
	msg := newMessage(sender, receiverID, req, time.Now().UTC().Truncate(time.Microsecond))

	_, err = db.Exec(
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		msg.ID, msg.Sender, msg.Receiver, msg.SenderName, msg.Content, msg.MediaURL, msg.Type, msg.IsSeen, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (db *PostgresStore) GetMessageByID(id string) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRow("SELECT "+messageColumns+" FROM messages WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresStore) GetConversation(userID1, userID2 string) ([]models.Message, error) {
	rows, err := db.Query(
		`SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC`,
		userID1, userID2,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (db *PostgresStore) MarkMessageSeen(id string) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRow(
		"UPDATE messages SET is_seen = true WHERE id = $1 RETURNING "+messageColumns, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresStore) Close() error {
	return db.DB.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var msg models.Message
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.SenderName, &msg.Content,
		&msg.MediaURL, &msg.Type, &msg.IsSeen, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
