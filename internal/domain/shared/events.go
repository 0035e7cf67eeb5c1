package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	// Completion events
	EventCompletionGranted EventType = "completion.granted"
	EventCompletionRepeat  EventType = "completion.repeat"
	EventRewardFailed      EventType = "completion.reward_failed"
	EventRewardApplied     EventType = "completion.reward_applied"

	// Content events
	EventHierarchyAudited EventType = "content.hierarchy_audited"
	EventNodesImported    EventType = "content.nodes_imported"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion Events
// ═══════════════════════════════════════════════════════════════════════════

// CompletionGrantedEvent is emitted the first time a learner completes a node.
// The aggregate is the learner.
type CompletionGrantedEvent struct {
	BaseEvent
	NodeID        string `json:"node_id"`
	Reward        int64  `json:"reward"`
	RewardApplied bool   `json:"reward_applied"`
	NewTotal      int64  `json:"new_total"`
}

// Payload implements Event interface.
func (e CompletionGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"node_id":        e.NodeID,
		"reward":         e.Reward,
		"reward_applied": e.RewardApplied,
		"new_total":      e.NewTotal,
	}
}

// NewCompletionGrantedEvent creates a new CompletionGrantedEvent.
func NewCompletionGrantedEvent(learnerID, nodeID string, reward int64, applied bool, newTotal int64) CompletionGrantedEvent {
	return CompletionGrantedEvent{
		BaseEvent:     NewBaseEvent(EventCompletionGranted, learnerID),
		NodeID:        nodeID,
		Reward:        reward,
		RewardApplied: applied,
		NewTotal:      newTotal,
	}
}

// CompletionRepeatEvent is emitted when a learner re-completes a node.
type CompletionRepeatEvent struct {
	BaseEvent
	NodeID string `json:"node_id"`
}

// Payload implements Event interface.
func (e CompletionRepeatEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"node_id": e.NodeID}
}

// NewCompletionRepeatEvent creates a new CompletionRepeatEvent.
func NewCompletionRepeatEvent(learnerID, nodeID string) CompletionRepeatEvent {
	return CompletionRepeatEvent{
		BaseEvent: NewBaseEvent(EventCompletionRepeat, learnerID),
		NodeID:    nodeID,
	}
}

// RewardFailedEvent is emitted when a completion was recorded but its reward
// could not be applied. The record is kept; the reward needs a manual replay.
type RewardFailedEvent struct {
	BaseEvent
	NodeID string `json:"node_id"`
	Reward int64  `json:"reward"`
	Reason string `json:"reason"`
}

// Payload implements Event interface.
func (e RewardFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"node_id": e.NodeID,
		"reward":  e.Reward,
		"reason":  e.Reason,
	}
}

// NewRewardFailedEvent creates a new RewardFailedEvent.
func NewRewardFailedEvent(learnerID, nodeID string, reward int64, reason string) RewardFailedEvent {
	return RewardFailedEvent{
		BaseEvent: NewBaseEvent(EventRewardFailed, learnerID),
		NodeID:    nodeID,
		Reward:    reward,
		Reason:    reason,
	}
}

// RewardAppliedEvent is emitted when an owed reward was applied by hand.
type RewardAppliedEvent struct {
	BaseEvent
	NodeID   string `json:"node_id"`
	Reward   int64  `json:"reward"`
	NewTotal int64  `json:"new_total"`
}

// Payload implements Event interface.
func (e RewardAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"node_id":   e.NodeID,
		"reward":    e.Reward,
		"new_total": e.NewTotal,
	}
}

// NewRewardAppliedEvent creates a new RewardAppliedEvent.
func NewRewardAppliedEvent(learnerID, nodeID string, reward, newTotal int64) RewardAppliedEvent {
	return RewardAppliedEvent{
		BaseEvent: NewBaseEvent(EventRewardApplied, learnerID),
		NodeID:    nodeID,
		Reward:    reward,
		NewTotal:  newTotal,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Content Events
// ═══════════════════════════════════════════════════════════════════════════

// HierarchyAuditedEvent summarizes one validation pass over a core.
type HierarchyAuditedEvent struct {
	BaseEvent
	Accepted int            `json:"accepted"`
	Issues   map[string]int `json:"issues"`
}

// Payload implements Event interface.
func (e HierarchyAuditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"accepted": e.Accepted,
		"issues":   e.Issues,
	}
}

// NewHierarchyAuditedEvent creates a new HierarchyAuditedEvent for a core.
func NewHierarchyAuditedEvent(core string, accepted int, issues map[string]int) HierarchyAuditedEvent {
	return HierarchyAuditedEvent{
		BaseEvent: NewBaseEvent(EventHierarchyAudited, core),
		Accepted:  accepted,
		Issues:    issues,
	}
}

// NodesImportedEvent is emitted after an import batch.
type NodesImportedEvent struct {
	BaseEvent
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// Payload implements Event interface.
func (e NodesImportedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"inserted": e.Inserted,
		"failed":   e.Failed,
	}
}

// NewNodesImportedEvent creates a new NodesImportedEvent.
func NewNodesImportedEvent(source string, inserted, failed int) NodesImportedEvent {
	return NodesImportedEvent{
		BaseEvent: NewBaseEvent(EventNodesImported, source),
		Inserted:  inserted,
		Failed:    failed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
