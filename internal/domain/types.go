package domain

// InstanceStatus describes what a registered worker instance is doing
type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceIdle     InstanceStatus = "idle"
	InstanceBusy     InstanceStatus = "busy"
	InstanceStopping InstanceStatus = "stopping"
)

// GroupStatus is the outcome of one task group within a batch
type GroupStatus string

const (
	GroupCompleted GroupStatus = "completed"
	GroupPartial   GroupStatus = "partial"
	GroupFailed    GroupStatus = "failed"
	GroupTimedOut  GroupStatus = "timedOut"
)

// Succeeded reports whether the group produced usable output
func (s GroupStatus) Succeeded() bool {
	return s == GroupCompleted || s == GroupPartial
}

// Activity actions written by the claim protocol
const (
	ActionClaim      = "claim"
	ActionRelease    = "release"
	ActionReap       = "reap"
	ActionReleaseAll = "release_all"
)
