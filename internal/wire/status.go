// Package wire holds the JSON wire types exchanged between the worker
// and its manager(s): statuses, commands, and schedule snapshots.
package wire

import "time"

// SyncStatus is the closed set of states a mirror can report.
type SyncStatus string

const (
	StatusNone       SyncStatus = "none"
	StatusFailed     SyncStatus = "failed"
	StatusSuccess    SyncStatus = "success"
	StatusSyncing    SyncStatus = "syncing"
	StatusPreSyncing SyncStatus = "pre-syncing"
	StatusPaused     SyncStatus = "paused"
	StatusDisabled   SyncStatus = "disabled"
)

// MirrorStatus is the message a worker emits when a mirror's state changes.
type MirrorStatus struct {
	Name        string     `json:"name"`
	Worker      string     `json:"worker"`
	IsMaster    bool       `json:"is_master"`
	Status      SyncStatus `json:"status"`
	LastUpdate  time.Time  `json:"last_update"`
	LastStarted time.Time  `json:"last_started"`
	LastEnded   time.Time  `json:"last_ended"`
	Scheduled   time.Time  `json:"next_schedule"`
	Upstream    string     `json:"upstream"`
	Size        string     `json:"size"`
	ErrorMsg    string     `json:"error_msg"`
}

// WorkerStatus describes a worker as reported to the manager and to clients.
type WorkerStatus struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Token        string    `json:"token"`
	LastOnline   time.Time `json:"last_online"`
	LastRegister time.Time `json:"last_register"`
}

// MirrorSchedule is one entry of a schedule snapshot pushed to the manager.
type MirrorSchedule struct {
	MirrorName   string    `json:"mirror_name"`
	NextSchedule time.Time `json:"next_schedule"`
}

// MirrorSchedules is the full snapshot body for POST /workers/<id>/schedules.
type MirrorSchedules struct {
	Schedules []MirrorSchedule `json:"schedules"`
}

// WebMirrorStatus is MirrorStatus enriched with Unix-second and human
// timestamp twins, as served over GET /jobs. Supplements spec.md's
// wire schema with the shape original_source names but leaves implicit.
type WebMirrorStatus struct {
	MirrorStatus
	LastUpdateTS  int64  `json:"last_update_ts"`
	LastStartedTS int64  `json:"last_started_ts"`
	LastEndedTS   int64  `json:"last_ended_ts"`
	ScheduledTS   int64  `json:"next_schedule_ts"`
	LastUpdateH   string `json:"last_update_human"`
	LastStartedH  string `json:"last_started_human"`
	LastEndedH    string `json:"last_ended_human"`
	ScheduledH    string `json:"next_schedule_human"`
}

const humanTimeLayout = "2006-01-02 15:04:05 -0700"

// NewWebMirrorStatus derives the web-facing view of a status.
func NewWebMirrorStatus(s MirrorStatus) WebMirrorStatus {
	return WebMirrorStatus{
		MirrorStatus:  s,
		LastUpdateTS:  s.LastUpdate.Unix(),
		LastStartedTS: s.LastStarted.Unix(),
		LastEndedTS:   s.LastEnded.Unix(),
		ScheduledTS:   s.Scheduled.Unix(),
		LastUpdateH:   s.LastUpdate.Format(humanTimeLayout),
		LastStartedH:  s.LastStarted.Format(humanTimeLayout),
		LastEndedH:    s.LastEnded.Format(humanTimeLayout),
		ScheduledH:    s.Scheduled.Format(humanTimeLayout),
	}
}
