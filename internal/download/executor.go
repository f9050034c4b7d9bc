package download

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/romfetch-downloader/romfetch/internal/logging"
)

// ErrCancelled is returned by Executor.Run when the control's cancel flag
// stopped the transfer. Cancellation is a first-class outcome, not a
// failure; the partial file stays on disk for a later resume.
var ErrCancelled = errors.New("download cancelled")

// Executor streams one file at a time to local disk. It resumes from an
// existing partial file via byte-range requests and keeps a running CRC-32
// over the combined stream, so the final checksum always covers the whole
// file even when most of it was downloaded in an earlier attempt.
type Executor struct {
	Client    *http.Client
	UserAgent string
	Control   *Control

	log zerolog.Logger
}

// NewExecutor creates an executor bound to a control. A nil client falls
// back to http.DefaultClient.
func NewExecutor(client *http.Client, userAgent string, ctrl *Control) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if ctrl == nil {
		ctrl = NewControl()
	}
	return &Executor{
		Client:    client,
		UserAgent: userAgent,
		Control:   ctrl,
		log:       logging.New("executor"),
	}
}

// Run transfers task.URL to task.DestPath, staging through the .part file.
// notify is invoked at a bounded rate as bytes arrive and once on
// completion. On success the task's ComputedCRC holds the full-file
// CRC-32 and the partial file has been renamed into place.
//
// Any error leaves the partial file untouched. Cancellation returns
// ErrCancelled with the task already marked StatusCancelled.
func (e *Executor) Run(ctx context.Context, task *Task, notify func()) error {
	partPath := task.DestPath + IncompleteSuffix

	if err := os.MkdirAll(filepath.Dir(task.DestPath), 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	resumeOffset := int64(0)
	if info, err := os.Stat(partPath); err == nil {
		resumeOffset = info.Size()
	}

	crc := crc32.NewIEEE()
	if resumeOffset > 0 {
		// Seed the hash with the already-downloaded bytes so the final
		// checksum reflects the complete file, not just this attempt.
		if err := hashFile(partPath, crc); err != nil {
			return fmt.Errorf("read partial file: %w", err)
		}
		e.log.Debug().Str("rom", task.RomName).Int64("offset", resumeOffset).Msg("resuming partial download")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	fileMode := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	switch {
	case resumeOffset > 0 && resp.StatusCode == http.StatusOK:
		// Server ignored the range header; start over.
		e.log.Warn().Str("rom", task.RomName).Msg("server ignored range request, restarting")
		resumeOffset = 0
		crc = crc32.NewIEEE()
		fileMode = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	case resumeOffset > 0 && resp.StatusCode == http.StatusPartialContent:
		// Appending to the partial file.
	case resp.StatusCode == http.StatusOK:
		fileMode = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > 0 {
		task.TotalBytes = resumeOffset + resp.ContentLength
	}
	task.DownloadedBytes = resumeOffset

	out, err := os.OpenFile(partPath, fileMode, 0644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
	}()

	buf := make([]byte, copyBufferSize)
	lastNotify := time.Time{}

	for {
		// Pause gate between chunks; cancel before each chunk write.
		if !e.Control.Wait() || e.Control.Cancelled() {
			task.Status = StatusCancelled
			return ErrCancelled
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			nw, writeErr := out.Write(buf[:nr])
			if nw > 0 {
				_, _ = crc.Write(buf[:nw])
				task.DownloadedBytes += int64(nw)
			}
			if writeErr != nil {
				return fmt.Errorf("write error: %w", writeErr)
			}
			if nr != nw {
				return io.ErrShortWrite
			}

			if notify != nil && time.Since(lastNotify) >= progressInterval {
				notify()
				lastNotify = time.Now()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("read error: %w", readErr)
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync error: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	closed = true

	if err := os.Rename(partPath, task.DestPath); err != nil {
		return fmt.Errorf("finalize file: %w", err)
	}

	task.ComputedCRC = fmt.Sprintf("%08x", crc.Sum32())
	task.TotalBytes = task.DownloadedBytes

	if notify != nil {
		notify()
	}
	return nil
}

// hashFile streams a file through h.
func hashFile(path string, h hash.Hash32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(h, f)
	return err
}
