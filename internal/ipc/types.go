package ipc

import (
	"time"

	"courier/internal/queue"
)

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse reports daemon liveness.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running       bool        `json:"running"`
	PID           int         `json:"pid"`
	StartedAt     time.Time   `json:"started_at"`
	SocketPath    string      `json:"socket_path"`
	DatabasePath  string      `json:"database_path"`
	LockPath      string      `json:"lock_path"`
	ActiveBatches int         `json:"active_batches"`
	Batches       []BatchView `json:"batches"`
}

// BatchAddRequest submits a relay batch for a user.
type BatchAddRequest struct {
	UserID     int64  `json:"user_id"`
	Source     string `json:"source"`
	SourceID   string `json:"source_id"`
	RangeStart int64  `json:"range_start"`
	RangeEnd   int64  `json:"range_end"`
	DestChat   int64  `json:"dest_chat"`
}

// BatchAddResponse reports the admitted batch.
type BatchAddResponse struct {
	BatchID string `json:"batch_id"`
	Total   int    `json:"total"`
}

// BatchControlRequest targets one user's batch for pause, resume, or cancel.
type BatchControlRequest struct {
	UserID int64 `json:"user_id"`
}

// BatchControlResponse reports whether the control was applied.
type BatchControlResponse struct {
	Applied bool `json:"applied"`
}

// QueueListRequest fetches all active queues.
type QueueListRequest struct{}

// QueueListResponse contains a view per active queue.
type QueueListResponse struct {
	Batches []BatchView `json:"batches"`
}

// QueueDescribeRequest fetches one user's queue.
type QueueDescribeRequest struct {
	UserID int64 `json:"user_id"`
}

// QueueDescribeResponse contains one queue view.
type QueueDescribeResponse struct {
	Found bool      `json:"found"`
	Batch BatchView `json:"batch"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// TaskView is the wire representation of an in-flight task.
type TaskView struct {
	MessageID   int64   `json:"message_id"`
	Status      string  `json:"status"`
	FileName    string  `json:"file_name"`
	FileKind    string  `json:"file_kind"`
	Transferred int64   `json:"transferred"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	SpeedBps    float64 `json:"speed_bps"`
	ETASeconds  int64   `json:"eta_seconds"`
	Retries     int     `json:"retries"`
	LastError   string  `json:"last_error"`
}

// BatchView is the wire representation of one user's queue.
type BatchView struct {
	UserID     int64     `json:"user_id"`
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	SourceID   string    `json:"source_id"`
	DestChat   int64     `json:"dest_chat"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	Paused     bool      `json:"paused"`
	Cancelled  bool      `json:"cancelled"`
	Progress   float64   `json:"progress"`
	ETASeconds int64     `json:"eta_seconds"`
	StartedAt  time.Time `json:"started_at"`
	Current    *TaskView `json:"current,omitempty"`
}

// FromQueueSnapshot converts a queue snapshot into its wire view.
func FromQueueSnapshot(snap queue.QueueSnapshot) BatchView {
	view := BatchView{
		UserID:     snap.UserID,
		BatchID:    snap.BatchID,
		Source:     string(snap.Source),
		SourceID:   snap.SourceID,
		DestChat:   snap.DestChat,
		Total:      snap.Total,
		Completed:  snap.Completed,
		Failed:     snap.Failed,
		Pending:    snap.Pending,
		Paused:     snap.Paused,
		Cancelled:  snap.Cancelled,
		Progress:   snap.Progress,
		ETASeconds: int64(snap.ETA / time.Second),
		StartedAt:  snap.StartedAt,
	}
	if snap.Current != nil {
		view.Current = &TaskView{
			MessageID:   snap.Current.MessageID,
			Status:      string(snap.Current.Status),
			FileName:    snap.Current.FileName,
			FileKind:    snap.Current.FileKind,
			Transferred: snap.Current.Transferred,
			Size:        snap.Current.Size,
			Progress:    snap.Current.Progress,
			SpeedBps:    snap.Current.Speed,
			ETASeconds:  int64(snap.Current.ETA / time.Second),
			Retries:     snap.Current.RetryCount,
			LastError:   snap.Current.LastError,
		}
	}
	return view
}
