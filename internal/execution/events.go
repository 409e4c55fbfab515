package execution

import (
	"encoding/json"
	"time"

	"clinic/execution-service/internal/hub"
	"clinic/execution-service/internal/models"

	"go.uber.org/zap"
)

const (
	EventItemClaimed   = "item.claimed"
	EventItemStarted   = "item.started"
	EventItemCompleted = "item.completed"
	EventNoteAdded     = "note.added"
)

type Event struct {
	Type       string                `json:"type"`
	ItemID     string                `json:"item_id"`
	Item       *models.ProcedureItem `json:"item,omitempty"`
	Note       *models.Note          `json:"note,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// Publisher receives workflow changes after they are committed.
type Publisher interface {
	Publish(event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

type hubPublisher struct {
	hub    *hub.Hub
	logger *zap.Logger
}

// NewHubPublisher fans events out to realtime subscribers.
func NewHubPublisher(h *hub.Hub, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hubPublisher{hub: h, logger: logger}
}

func (p *hubPublisher) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode realtime event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	p.hub.Broadcast(payload, hub.Subscription{ItemID: event.ItemID})
}
