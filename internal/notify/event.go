package notify

import (
	"fmt"
	"strings"
)

// Event ids emitted by the batch executor
const (
	EventBatchStart    = "batch.start"
	EventBatchProgress = "batch.progress"
	EventBatchComplete = "batch.complete"
	EventGroupComplete = "group.complete"
	EventGroupError    = "group.error"
	EventCheckpoint    = "batch.checkpoint"
)

// Port receives lifecycle events. Implementations must not block the caller
// and must not report errors back.
type Port interface {
	Emit(event string, data map[string]any)
}

// NopPort discards events
type NopPort struct{}

func (NopPort) Emit(string, map[string]any) {}

// FromEvent renders an event as a human-readable notification
func FromEvent(event string, data map[string]any) Notification {
	n := Notification{Event: event, Data: data, Type: NotifyInfo}
	if id, ok := data["group_id"].(string); ok {
		n.GroupID = id
	}

	switch event {
	case EventBatchStart:
		n.Title = "Batch started"
		n.Message = fmt.Sprintf("%v groups, %v agents", data["groups"], data["agents"])
	case EventBatchProgress:
		n.Title = "Batch progress"
		n.Message = fmt.Sprintf("%v/%v groups done, %v dependent groups pending",
			data["done"], data["total"], data["pending"])
	case EventGroupComplete:
		n.Title = fmt.Sprintf("Group %v %v", data["group_id"], data["status"])
		n.Message = fmt.Sprintf("%vms, %v/%v done", data["duration_ms"], data["done"], data["total"])
		if status, _ := data["status"].(string); status != "completed" {
			n.Type = NotifyWarning
		} else {
			n.Type = NotifySuccess
		}
	case EventGroupError:
		n.Title = fmt.Sprintf("Group %v failed", data["group_id"])
		n.Message = fmt.Sprint(data["error"])
		n.Type = NotifyError
	case EventCheckpoint:
		n.Title = "Batch checkpoint"
		n.Message = fmt.Sprintf("pending: %s", joinAny(data["pending"]))
	case EventBatchComplete:
		n.Title = "Batch complete"
		n.Message = fmt.Sprintf("%v/%v completed, %v failed", data["completed"], data["total"], data["failed"])
		n.Type = NotifySuccess
		if failed, ok := data["failed"].(int); ok && failed > 0 {
			n.Type = NotifyWarning
		}
	default:
		n.Title = event
		n.Message = fmt.Sprint(data)
	}
	return n
}

func joinAny(v any) string {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return "none"
		}
		return strings.Join(t, ", ")
	case nil:
		return "none"
	default:
		return fmt.Sprint(t)
	}
}
