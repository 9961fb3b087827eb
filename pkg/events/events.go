// Package events defines event types and structures for process run notifications.
package events

import (
	"time"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every consolidation event.
const Topic = "consolidation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent       EventType = "run.started"
	NodeCompletedEvent    EventType = "run.node.completed"
	RunCompletedEvent     EventType = "run.completed"
	RunFailedEvent        EventType = "run.failed"
	RunCancelledEvent     EventType = "run.cancelled"
	ProcessFinalizedEvent EventType = "process.finalized"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	CompanyID string         `json:"company_id"`
	ProcessID string         `json:"process_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	RunID string         `json:"run_id"`
	Mode  models.RunMode `json:"mode"`
	Waves [][]string     `json:"waves"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// NodeCompleted is emitted once per dispatched node, whatever its outcome.
type NodeCompleted struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	NodeID     string            `json:"node_id"`
	NodeType   models.NodeType   `json:"node_type"`
	Wave       int               `json:"wave"`
	Status     models.NodeStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID         string         `json:"run_id"`
	Mode          models.RunMode `json:"mode"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	NodeErrors    int            `json:"node_errors"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID         string            `json:"run_id"`
	Mode          models.RunMode    `json:"mode"`
	DurationMs    int64             `json:"duration_ms"`
	NodesExecuted int               `json:"nodes_executed"`
	Errors        []models.RunError `json:"errors"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	RunID         string         `json:"run_id"`
	Mode          models.RunMode `json:"mode"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type ProcessFinalized struct {
	BaseEvent

	RunID       string    `json:"run_id"`
	FiscalYear  int       `json:"fiscal_year"`
	FinalizedAt time.Time `json:"finalized_at"`
}

func (e ProcessFinalized) GetType() EventType {
	return ProcessFinalizedEvent
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case RunStartedEvent:
		return &RunStarted{}, true
	case NodeCompletedEvent:
		return &NodeCompleted{}, true
	case RunCompletedEvent:
		return &RunCompleted{}, true
	case RunFailedEvent:
		return &RunFailed{}, true
	case RunCancelledEvent:
		return &RunCancelled{}, true
	case ProcessFinalizedEvent:
		return &ProcessFinalized{}, true
	default:
		return nil, false
	}
}

func NewBaseEvent(eventType EventType, ref models.ProcessRef) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		CompanyID: ref.CompanyID,
		ProcessID: ref.ProcessID,
		Metadata:  make(map[string]any),
	}
}
