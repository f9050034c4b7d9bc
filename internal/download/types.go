// Package download implements the sequential transfer pipeline: a queue of
// tasks executed one at a time with resumable streaming, inline CRC-32
// computation, integrity verification and cooperative pause/cancel control.
package download

import "time"

// Status is the lifecycle state of one download task. Transitions are
// monotonic: Queued -> Downloading -> one of the four terminal states.
type Status int

const (
	StatusQueued Status = iota
	StatusDownloading
	StatusComplete
	StatusFailed
	StatusCancelled
	StatusCRCMismatch
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusDownloading:
		return "downloading"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusCRCMismatch:
		return "crc_mismatch"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled, StatusCRCMismatch:
		return true
	}
	return false
}

// IncompleteSuffix marks in-progress files on disk. The suffix is removed
// only on successful completion; failed transfers keep the partial file
// for a later resume.
const IncompleteSuffix = ".part"

const (
	// copyBufferSize is the streaming chunk size. Large enough for few
	// syscalls, small enough that pause and cancel bite quickly.
	copyBufferSize = 256 * 1024

	// progressInterval caps progress callback frequency per task.
	progressInterval = 100 * time.Millisecond

	// controlPollInterval bounds how long cancel can go unnoticed while
	// waiting out an inter-task delay.
	controlPollInterval = 250 * time.Millisecond

	// MaxDelay clamps the caller-supplied inter-task delay.
	MaxDelay = 60 * time.Second
)

// Task is one queued download. A task is owned exclusively by the
// executor while in flight; callers read it only through the progress
// callback or after the run finishes.
type Task struct {
	RomName      string
	URL          string
	DestPath     string
	ExpectedCRC  string // lowercase 8-hex-digit CRC-32, empty to skip verification
	ExpectedSize int64
	SystemName   string

	Status          Status
	DownloadedBytes int64
	TotalBytes      int64
	ComputedCRC     string
	Error           string
}

// Progress is the aggregate view over one queue run. It is passed by
// reference to the progress callback; callers must treat it as read-only.
type Progress struct {
	TotalCount  int
	Completed   int
	Failed      int
	Cancelled   int
	CurrentTask *Task
}

// Finished returns the number of tasks that reached a terminal state.
func (p *Progress) Finished() int {
	return p.Completed + p.Failed + p.Cancelled
}

// Callback receives the aggregate progress after every task transition and
// at a bounded rate during transfers.
type Callback func(*Progress)
