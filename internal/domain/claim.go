package domain

import "time"

// ClaimRecord is the persisted lease on one unit of a milestone
type ClaimRecord struct {
	MilestoneID string    `json:"milestone_id"`
	UnitID      string    `json:"unit_id"`
	InstanceID  string    `json:"instance_id"`
	Workspace   string    `json:"workspace,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// OwnedBy returns true if the claim belongs to the given instance
func (c *ClaimRecord) OwnedBy(instanceID string) bool {
	return c.InstanceID == instanceID
}

// Age returns how long ago the last heartbeat was written
func (c *ClaimRecord) Age(now time.Time) time.Duration {
	return now.Sub(c.HeartbeatAt)
}

// InstanceRecord describes one worker process participating in coordination
type InstanceRecord struct {
	InstanceID       string         `json:"instance_id"`
	Workspace        string         `json:"workspace"`
	Branch           string         `json:"branch,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	HeartbeatAt      time.Time      `json:"heartbeat_at"`
	Status           InstanceStatus `json:"status"`
	CurrentMilestone string         `json:"current_milestone,omitempty"`
}

// CoordinationMessage is an immutable status broadcast between instances
type CoordinationMessage struct {
	FromInstance string         `json:"from_instance"`
	MilestoneID  string         `json:"milestone_id,omitempty"`
	Type         string         `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// ActivityEntry is one line of a milestone's bounded activity log
type ActivityEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instance_id"`
	Action     string    `json:"action"`
	UnitID     string    `json:"unit_id,omitempty"`
}
