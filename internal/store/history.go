package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the author.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the writing assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// ConversationStore persists and retrieves conversation history keyed by
// book. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single message for the given book.
	Append(ctx context.Context, bookID string, role Role, content string) error
	// Recent returns the most recent n messages for the book, ordered
	// oldest-first so they can be prepended to the LLM message slice directly.
	Recent(ctx context.Context, bookID string, n int) ([]Message, error)
}

// conversationTurn is the GORM row behind a Message.
type conversationTurn struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BookID    string    `gorm:"size:64;not null;index:idx_turns_book_created,priority:1"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_turns_book_created,priority:2"`
}

func (conversationTurn) TableName() string { return "conversation_turns" }

// History is a ConversationStore backed by GORM.
type History struct {
	// db is the shared database handle.
	db *gorm.DB
}

// NewHistory migrates the conversation table and returns a History.
func NewHistory(db *gorm.DB) (*History, error) {
	if err := db.AutoMigrate(&conversationTurn{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &History{db: db}, nil
}

// Append persists a single message for the given book.
func (h *History) Append(ctx context.Context, bookID string, role Role, content string) error {
	switch role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("store: append: invalid role %q", role)
	}
	row := &conversationTurn{BookID: bookID, Role: string(role), Content: content}
	if err := h.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n messages for the book, oldest-first.
func (h *History) Recent(ctx context.Context, bookID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []conversationTurn
	err := h.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}

	msgs := make([]Message, len(rows))
	for i, r := range rows {
		msgs[len(rows)-1-i] = Message{Role: Role(r.Role), Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return msgs, nil
}
