package events

import (
	"context"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const (
	TopicSystemAnnouncements = "system_announcements"
	TopicTasksGlobal         = "tasks_global"
)

// Publisher wraps a client so that every successfully published event is
// also pushed to the connected clients of the payload's user_id.
type Publisher struct {
	zerodb.Client
	hub *Hub
}

func NewPublisher(c zerodb.Client, hub *Hub) *Publisher {
	return &Publisher{Client: c, hub: hub}
}

func relayed(topic string) bool {
	return topic != TopicSystemAnnouncements && topic != TopicTasksGlobal
}

func (p *Publisher) PublishEvent(ctx context.Context, topic string, payload map[string]any) (zerodb.Event, error) {
	ev, err := p.Client.PublishEvent(ctx, topic, payload)
	if err != nil {
		return ev, err
	}

	if uid, _ := payload["user_id"].(string); uid != "" && relayed(topic) {
		p.hub.Broadcast(uid, Message{Topic: topic, Payload: payload})
	}
	return ev, nil
}
