package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sesmanagement/discussions/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
)

// User is an account known to the reference backend
type User struct {
	ID        string
	FirstName string
	LastName  string
	Picture   string
}

// Contact renders the user as a roster row without preview or unread count
func (u User) Contact() models.Contact {
	return models.Contact{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Picture:   u.Picture,
	}
}

// Store is the persistence the handlers and the hub work against
type Store interface {
	// User methods
	CreateUser(u User) error
	GetUserByID(id string) (*User, error)
	ListUsers() ([]User, error)

	// ChatUsers returns everyone but userID, with the last message preview
	// and userID's unread count per contact, most recent conversation first
	ChatUsers(userID string) ([]models.Contact, error)

	// Message methods
	CreateMessage(senderID, receiverID string, req models.SendRequest) (*models.Message, error)
	GetMessageByID(id string) (*models.Message, error)
	GetConversation(userID1, userID2 string) ([]models.Message, error)
	MarkMessageSeen(id string) (*models.Message, error)

	Close() error
}

// DatabaseType selects the Store implementation
type DatabaseType string

const (
	Memory     DatabaseType = "memory"
	PostgreSQL DatabaseType = "postgres"
)

// NewStore opens the store of the given type; connStr is ignored for memory
func NewStore(dbType DatabaseType, connStr string) (Store, error) {
	switch dbType {
	case Memory:
		return NewMemoryStore(), nil
	case PostgreSQL:
		return NewPostgresStore(connStr)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// SeedUsers are created on startup so a fresh backend has someone to talk to
var SeedUsers = []User{
	{ID: "ada", FirstName: "Ada", LastName: "Lovelace"},
	{ID: "grace", FirstName: "Grace", LastName: "Hopper"},
	{ID: "linus", FirstName: "Linus", LastName: "Torvalds"},
	{ID: "margaret", FirstName: "Margaret", LastName: "Hamilton"},
}

// Seed creates every user in users that does not exist yet
func Seed(s Store, users []User) error {
	for _, u := range users {
		if _, err := s.GetUserByID(u.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		if err := s.CreateUser(u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return nil
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	users    []User
	messages []models.Message
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) CreateUser(u User) error {
	if u.ID == "" {
		return errors.New("user ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID {
			return fmt.Errorf("user %s already exists", u.ID)
		}
	}
	s.users = append(s.users, u)
	return nil
}

func (s *MemoryStore) GetUserByID(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user(id)
}

func (s *MemoryStore) ListUsers() ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *MemoryStore) ChatUsers(userID string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		contact models.Contact
		last    time.Time
	}
	var rows []row
	for _, u := range s.users {
		if u.ID == userID {
			continue
		}
		r := row{contact: u.Contact()}
		for _, m := range s.messages {
			if !m.Involves(userID, u.ID) {
				continue
			}
			if !m.CreatedAt.Before(r.last) {
				r.last = m.CreatedAt
				r.contact.LastMessage = m.Preview()
			}
			if m.Sender == u.ID && !m.IsSeen {
				r.contact.UnreadCount++
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].last.Equal(rows[j].last) {
			return rows[i].last.After(rows[j].last)
		}
		return strings.ToLower(rows[i].contact.FirstName) < strings.ToLower(rows[j].contact.FirstName)
	})

	contacts := make([]models.Contact, len(rows))
	for i, r := range rows {
		contacts[i] = r.contact
	}
	return contacts, nil
}

func (s *MemoryStore) CreateMessage(senderID, receiverID string, req models.SendRequest) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, err := s.user(senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.user(receiverID); err != nil {
		return nil, err
	}

	msg := newMessage(sender, receiverID, req, s.now())
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *MemoryStore) GetMessageByID(id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStore) GetConversation(userID1, userID2 string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if m.Involves(userID1, userID2) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkMessageSeen(id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].IsSeen = true
			cp := s.messages[i]
			return &cp, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) user(id string) (*User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func newMessage(sender *User, receiverID string, req models.SendRequest, now time.Time) models.Message {
	msg := models.Message{
		ID:         uuid.NewString(),
		Sender:     sender.ID,
		Receiver:   receiverID,
		SenderName: strings.TrimSpace(sender.FirstName + " " + sender.LastName),
		Content:    req.Content,
		Type:       req.MessageType,
		CreatedAt:  now,
	}
	if req.MediaURL != nil {
		msg.MediaURL = *req.MediaURL
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	return msg
}
