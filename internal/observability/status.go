package observability

import (
	"sync"
	"time"
)

// Role is what the process is busy with, shown on the status line.
type Role string

const (
	RoleIdle      Role = "IDLE"
	RolePlanning  Role = "PLANNING"
	RoleExecuting Role = "EXECUTING"
	RoleBrowsing  Role = "BROWSING"
)

// Snapshot is a copy of the shared status.
type Snapshot struct {
	Role          Role
	Task          string
	Since         time.Time
	LastHeartbeat time.Time
}

type systemStatus struct {
	mu  sync.RWMutex
	cur Snapshot
}

var globalStatus = &systemStatus{
	cur: Snapshot{Role: RoleIdle, Since: time.Now(), LastHeartbeat: time.Now()},
}

// SetStatus updates the global system status.
func SetStatus(role Role, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.cur.Role = role
	globalStatus.cur.Task = task
	globalStatus.cur.Since = time.Now()
}

// Enter switches to role and returns a func that restores the previous
// role and task. Intended for defer.
func Enter(role Role, task string) (leave func()) {
	prev := GetStatus()
	SetStatus(role, task)
	return func() { SetStatus(prev.Role, prev.Task) }
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.cur
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.cur.LastHeartbeat = time.Now()
}
