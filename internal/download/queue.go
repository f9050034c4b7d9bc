package download

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/romfetch-downloader/romfetch/internal/logging"
	"github.com/romfetch-downloader/romfetch/internal/rom"
)

// ErrEmptyQueue is returned by Run when no tasks have been queued. An
// empty run is a caller bug, not a runtime condition.
var ErrEmptyQueue = errors.New("download queue is empty")

// Recorder persists terminal tasks. The queue treats recording as
// best-effort: a recorder failure is logged and never affects a run.
type Recorder interface {
	RecordTask(task *Task) error
}

// URLResolver derives a direct download URL for a ROM record. Satisfied
// by the mirror client.
type URLResolver interface {
	RomURL(ctx context.Context, r rom.Info, validate bool) (string, bool)
}

// Queue holds an ordered list of download tasks and runs them strictly
// sequentially: one active transfer at any instant, with an optional
// delay between tasks so mirrors see browser-like pacing.
//
// The task list and aggregate progress are owned by the queue for the
// duration of a run. Cancel, Pause and Resume are safe from any
// goroutine; everything else is single-threaded by contract.
type Queue struct {
	Recorder Recorder

	client    *http.Client
	userAgent string
	tasks     []*Task
	ctrl      *Control
	log       zerolog.Logger
}

// NewQueue creates an empty queue using the given HTTP client for
// transfers. A nil client falls back to http.DefaultClient.
func NewQueue(client *http.Client, userAgent string) *Queue {
	if client == nil {
		client = http.DefaultClient
	}
	return &Queue{
		client:    client,
		userAgent: userAgent,
		ctrl:      NewControl(),
		log:       logging.New("queue"),
	}
}

// QueueRom appends a download task. The destination filename is the
// decoded last URL segment, written directly under destFolder.
func (q *Queue) QueueRom(romName, rawurl, destFolder, expectedCRC string, expectedSize int64, systemName string) *Task {
	filename := path.Base(rawurl)
	if decoded, err := url.PathUnescape(filename); err == nil {
		filename = decoded
	}

	task := &Task{
		RomName:      romName,
		URL:          rawurl,
		DestPath:     filepath.Join(destFolder, filename),
		ExpectedCRC:  expectedCRC,
		ExpectedSize: expectedSize,
		SystemName:   systemName,
		Status:       StatusQueued,
	}
	q.tasks = append(q.tasks, task)
	q.log.Debug().Str("rom", romName).Str("dest", task.DestPath).Msg("task queued")
	return task
}

// QueueMissing resolves URLs for a batch of ROM records and queues every
// one that resolves. Returns the number queued. Stops early if the queue
// is cancelled mid-batch.
func (q *Queue) QueueMissing(ctx context.Context, roms []rom.Info, destFolder string, resolver URLResolver) int {
	queued := 0
	for _, r := range roms {
		if q.ctrl.Cancelled() {
			break
		}
		rawurl, ok := resolver.RomURL(ctx, r, false)
		if !ok {
			continue
		}
		q.QueueRom(r.Name, rawurl, destFolder, r.CRC32, r.Size, r.SystemName)
		queued++
	}
	return queued
}

// Tasks returns a snapshot of the queued tasks.
func (q *Queue) Tasks() []*Task {
	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Clear drops all tasks and resets the control flags for reuse.
func (q *Queue) Clear() {
	q.tasks = nil
	q.ctrl = NewControl()
}

// Cancel requests termination of the current run. Remaining tasks are
// marked cancelled without network access.
func (q *Queue) Cancel() { q.ctrl.Cancel() }

// Pause suspends the current transfer at the next chunk boundary.
func (q *Queue) Pause() { q.ctrl.Pause() }

// Resume releases a paused run.
func (q *Queue) Resume() { q.ctrl.Resume() }

// Run executes all queued tasks in submission order and returns the
// aggregate progress. Before each task past the first it waits delay
// (clamped to [0, 60s]) while remaining responsive to cancel and pause.
// Task failures never abort the run; only an empty queue is an error.
func (q *Queue) Run(ctx context.Context, callback Callback, delay time.Duration) (*Progress, error) {
	if len(q.tasks) == 0 {
		return nil, ErrEmptyQueue
	}

	if delay < 0 {
		delay = 0
	}
	if delay > MaxDelay {
		delay = MaxDelay
	}

	exec := NewExecutor(q.client, q.userAgent, q.ctrl)
	progress := &Progress{TotalCount: len(q.tasks)}

	for i, task := range q.tasks {
		if q.ctrl.Cancelled() {
			q.finishCancelled(task, progress, callback)
			continue
		}

		if i > 0 && delay > 0 {
			if !q.ctrl.Sleep(delay) {
				q.finishCancelled(task, progress, callback)
				continue
			}
		}

		if !q.ctrl.Wait() {
			q.finishCancelled(task, progress, callback)
			continue
		}

		task.Status = StatusDownloading
		progress.CurrentTask = task
		q.safeCallback(callback, progress)
		q.log.Info().Str("rom", task.RomName).Str("url", task.URL).Msg("download started")

		err := exec.Run(ctx, task, func() { q.safeCallback(callback, progress) })
		switch {
		case errors.Is(err, ErrCancelled):
			progress.Cancelled++
			q.log.Info().Str("rom", task.RomName).Msg("download cancelled")
		case err != nil:
			task.Status = StatusFailed
			task.Error = err.Error()
			progress.Failed++
			q.log.Error().Err(err).Str("rom", task.RomName).Msg("download failed")
		default:
			task.Status = Verify(task)
			if task.Status == StatusComplete {
				progress.Completed++
				q.log.Info().Str("rom", task.RomName).Str("crc", task.ComputedCRC).Msg("download complete")
			} else {
				progress.Failed++
			}
		}

		q.record(task)
		q.safeCallback(callback, progress)
	}

	return progress, nil
}

func (q *Queue) finishCancelled(task *Task, progress *Progress, callback Callback) {
	task.Status = StatusCancelled
	progress.Cancelled++
	progress.CurrentTask = task
	q.log.Info().Str("rom", task.RomName).Msg("cancelled before start")
	q.record(task)
	q.safeCallback(callback, progress)
}

func (q *Queue) record(task *Task) {
	if q.Recorder == nil {
		return
	}
	if err := q.Recorder.RecordTask(task); err != nil {
		q.log.Error().Err(err).Str("rom", task.RomName).Msg("history record failed")
	}
}

// safeCallback shields the run from caller-side panics.
func (q *Queue) safeCallback(callback Callback, progress *Progress) {
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("progress callback panicked")
		}
	}()
	callback(progress)
}
