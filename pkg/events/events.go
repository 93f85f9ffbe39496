package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vitalab/vitalab-backend/pkg/logger"
)

// Subjects published by the API.
const (
	SubjectCodeSent       = "auth.code_sent"
	SubjectUserRegistered = "auth.user_registered"
	SubjectUserLoggedIn   = "auth.user_logged_in"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// CodeSent is emitted after a verification code was dispatched and stored.
type CodeSent struct {
	PhoneNumber string    `json:"phone_number"`
	SentAt      time.Time `json:"sent_at"`
}

// UserRegistered is emitted when first-login verification creates a user.
type UserRegistered struct {
	UserID       int64     `json:"user_id"`
	PhoneNumber  string    `json:"phone_number"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserLoggedIn is emitted on every successful code or password login.
type UserLoggedIn struct {
	UserID      int64     `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	Method      string    `json:"method"` // "sms_code" or "password"
	LoggedInAt  time.Time `json:"logged_in_at"`
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// NoopPublisher is used when NATS is disabled; publishes are dropped.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	logger.DebugContext(ctx, "Event bus disabled, dropping event", "subject", subject)
	return nil
}

func (NoopPublisher) Close() error { return nil }
