package workspace

import (
	"context"
	"time"

	"github.com/asaidimu/manyjson/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names a use case. Its events are "<operation>:start",
// "<operation>:success" and "<operation>:failed".
type Operation string

const (
	OpCreateSchema  Operation = "schema:create"
	OpUpdateSchema  Operation = "schema:update"
	OpDeleteSchema  Operation = "schema:delete"
	OpRefreshSchema Operation = "schema:refresh"
	OpLoadSchemas   Operation = "schemas:load"
	OpCreateFile    Operation = "file:create"
	OpSaveFile      Operation = "file:save"
	OpDeleteFile    Operation = "file:delete"
	OpRenameFile    Operation = "file:rename"
	OpAssociateFile Operation = "file:associate"
	OpRefreshFile   Operation = "file:refresh"
	OpLoadFiles     Operation = "files:load"
	OpSaveRecord    Operation = "record:save"
	OpSelect        Operation = "selection:change"
)

// EventType is the name events are published under.
type EventType string

// Start is the event emitted when op begins.
func (op Operation) Start() EventType { return EventType(op + ":start") }

// Success is the event emitted when op completes.
func (op Operation) Success() EventType { return EventType(op + ":success") }

// Failed is the event emitted when op fails.
func (op Operation) Failed() EventType { return EventType(op + ":failed") }

const (
	// RecordSaveFailed reports that the association record could not be
	// written. In-memory state is unaffected.
	RecordSaveFailed = EventType("record:save:failed")

	// FileStale reports a file restored from its recorded copy because the
	// live blob could not be read.
	FileStale = EventType("file:stale")

	// FileOrphaned reports a data file whose schema was deleted while the
	// file stays in storage.
	FileOrphaned = EventType("file:orphaned")
)

// Event is published on the workspace bus for every tracked operation.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Operation Operation      `json:"operation"`
	Schema    string         `json:"schema,omitempty"`
	File      string         `json:"file,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Duration  *int64         `json:"duration,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

var timeZero time.Time

// EventCallback handles a published event.
type EventCallback func(ctx context.Context, event Event) error

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID          string    `json:"id"`
	Event       EventType `json:"event"`
	Label       string    `json:"label,omitempty"`
	Unsubscribe func()    `json:"-"`
}

func createEvent(eventType EventType, op Operation, schema, file string, output any, err error, startTime time.Time) Event {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: op,
		Schema:    schema,
		File:      file,
		Output:    output,
	}
	if !startTime.IsZero() {
		ev.Duration = utils.Int64Ptr(time.Since(startTime).Milliseconds())
	}
	if err != nil {
		ev.Error = utils.StringPtr(err.Error())
	}
	return ev
}

func (s *Service) emit(ev Event) {
	if s.bus != nil {
		s.bus.Emit(string(ev.Type), ev)
	}
}

// tracked wraps fn with start, success and failure events.
func tracked[T any](s *Service, op Operation, schema, file string, fn func() (T, error)) (T, error) {
	startTime := time.Now()
	s.emit(createEvent(op.Start(), op, schema, file, nil, nil, timeZero))

	result, err := fn()
	if err != nil {
		s.logger.Debug("Operation failed", zap.String("operation", string(op)), zap.String("schema", schema), zap.String("file", file), zap.Error(err))
		s.emit(createEvent(op.Failed(), op, schema, file, nil, err, startTime))
		return result, err
	}
	s.emit(createEvent(op.Success(), op, schema, file, result, nil, startTime))
	return result, nil
}

// Subscribe registers callback for events of the given type and returns a
// subscription id for Unsubscribe.
func (s *Service) Subscribe(event EventType, label string, callback EventCallback) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	unsubscribe := s.bus.Subscribe(string(event), func(ctx context.Context, ev Event) error {
		return callback(ctx, ev)
	})
	id := uuid.New().String()
	s.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       event,
		Label:       label,
		Unsubscribe: unsubscribe,
	}
	return id
}

// Unsubscribe removes a subscription by id. Unknown ids are ignored.
func (s *Service) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if info, ok := s.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(s.subscriptions, id)
	}
}

// Subscriptions lists the active subscriptions.
func (s *Service) Subscriptions() []SubscriptionInfo {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
