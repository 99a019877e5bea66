package observability

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeAction      EventType = "action"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeAdaptive    EventType = "adaptive_step"
	EventTypeOracle      EventType = "oracle"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event is one entry of the oracle transcript.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger emits typed events through zap. Oracle events are also
// appended to a rotated JSONL transcript.
type EventLogger struct {
	logger     *zap.Logger
	mu         sync.Mutex
	transcript io.Writer
}

// NewEventLogger writes the oracle transcript to path, rotating at maxSizeMB
// and keeping one backup. An empty path disables the transcript.
func NewEventLogger(logger *zap.Logger, path string, maxSizeMB int) *EventLogger {
	l := &EventLogger{logger: logger.Named("events")}
	if path != "" {
		if maxSizeMB <= 0 {
			maxSizeMB = 10
		}
		l.transcript = &lumberjack.Logger{Filename: path, MaxSize: maxSizeMB, MaxBackups: 1}
	}
	return l
}

// NewEventLoggerWriter is NewEventLogger with an explicit transcript sink.
func NewEventLoggerWriter(logger *zap.Logger, w io.Writer) *EventLogger {
	return &EventLogger{logger: logger.Named("events"), transcript: w}
}

// Log emits one event.
func (l *EventLogger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.logger.Debug(string(evt.Type),
		zap.String("event", string(evt.Type)),
		zap.String("chat_id", evt.ChatID),
		zap.String("task_id", evt.TaskID),
		zap.Any("data", evt.Data))

	if evt.Type == EventTypeOracle && l.transcript != nil {
		data, err := json.Marshal(evt)
		if err != nil {
			l.logger.Warn("Failed to marshal oracle event", zap.Error(err))
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, err := l.transcript.Write(append(data, '\n')); err != nil {
			l.logger.Warn("Failed to write oracle transcript", zap.Error(err))
		}
	}
}

func (l *EventLogger) LogPlan(chatID, planID string, lines []string) {
	l.Log(Event{Type: EventTypePlan, ChatID: chatID, TaskID: planID, Data: map[string]any{"actions": lines}})
}

func (l *EventLogger) LogAction(chatID, planID, kind, summary string, succeeded bool, errorKind string, durationMs int64) {
	l.Log(Event{
		Type:   EventTypeAction,
		ChatID: chatID,
		TaskID: planID,
		Data: map[string]any{
			"kind":        kind,
			"action":      summary,
			"succeeded":   succeeded,
			"error_kind":  errorKind,
			"duration_ms": durationMs,
		},
	})
}

func (l *EventLogger) LogPolicyCheck(chatID, command, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		Data:   map[string]string{"command": command, "effect": effect, "reason": reason},
	})
}

func (l *EventLogger) LogAdaptive(sessionID string, iteration int, summary string, succeeded bool) {
	l.Log(Event{
		Type:   EventTypeAdaptive,
		TaskID: sessionID,
		Data:   map[string]any{"iteration": iteration, "action": summary, "succeeded": succeeded},
	})
}

func (l *EventLogger) LogOracle(chatID, taskID, call string, prompt any, response string) {
	l.Log(Event{
		Type:   EventTypeOracle,
		ChatID: chatID,
		TaskID: taskID,
		Data:   map[string]any{"call": call, "prompt": prompt, "response": response},
	})
}

func (l *EventLogger) LogHeartbeat() {
	l.Log(Event{Type: EventTypeHeartbeat, Data: map[string]string{"status": "alive"}})
}
