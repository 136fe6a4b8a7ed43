package scheduler

import "time"

// MaintenanceInterval is the period of the roster maintenance job.
const MaintenanceInterval = time.Minute

// NewMaintenanceTask wraps the roster's periodic job: expiry enforcement,
// stale one-time link cleanup and state persistence. It runs once at start
// and then every interval after the previous run completes.
func NewMaintenanceTask(fn TaskFunc, interval time.Duration) *Task {
	if interval <= 0 {
		interval = MaintenanceInterval
	}
	return &Task{
		ID:          "roster-maintenance",
		Name:        "Roster Maintenance",
		Description: "Disable expired clients and drop stale one-time links",
		Schedule:    Every(interval),
		RunOnStart:  true,
		Timeout:     interval,
		Func:        fn,
	}
}
