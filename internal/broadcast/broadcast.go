package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	redisChannelPrefix = "helpdesk:notifications:"
	natsSubjectPrefix  = "helpdesk.notifications."
)

// Broadcaster pushes a stored notification to live listeners.
type Broadcaster interface {
	Broadcast(ctx context.Context, n domain.Notification) error
}

// Message is the wire payload shared by every channel.
type Message struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Type         string              `json:"type"`
	Title        string              `json:"title"`
	Message      string              `json:"message"`
	ResourceType domain.ResourceType `json:"resource_type"`
	ResourceID   string              `json:"resource_id"`
	CreatedAt    string              `json:"created_at"`
}

func encode(n domain.Notification) ([]byte, error) {
	return json.Marshal(Message{
		ID:           n.ID,
		UserID:       n.UserID,
		Type:         string(n.Type),
		Title:        n.Title,
		Message:      n.Message,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		CreatedAt:    n.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// RedisChannel returns the pub/sub channel for a user.
func RedisChannel(userID string) string {
	return redisChannelPrefix + userID
}

// NATSSubject returns the subject for a user.
func NATSSubject(userID string) string {
	return natsSubjectPrefix + userID
}

// Redis publishes on per-user pub/sub channels.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Broadcast(ctx context.Context, n domain.Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, RedisChannel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// NATS publishes on per-user subjects.
type NATS struct {
	conn *nats.Conn
}

// NewNATS wraps an open connection.
func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{conn: conn}
}

// ConnectNATS dials url with a client name.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

func (b *NATS) Broadcast(_ context.Context, n domain.Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(NATSSubject(n.UserID), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Noop drops every notification. Clients poll the inbox instead.
type Noop struct{}

func (Noop) Broadcast(context.Context, domain.Notification) error { return nil }

// Fanout delivers to every channel and returns the first error after trying all of them.
type Fanout []Broadcaster

func (f Fanout) Broadcast(ctx context.Context, n domain.Notification) error {
	var first error
	for _, b := range f {
		if b == nil {
			continue
		}
		if err := b.Broadcast(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
