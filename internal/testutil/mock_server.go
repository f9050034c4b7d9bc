// Package testutil provides HTTP test servers for exercising the download
// pipeline against controlled remote behavior.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// NewHTTPServerT starts an httptest server on an IPv4 loopback listener
// (sandboxes without IPv6 reject the httptest default) and skips the
// test when no listener can be bound at all.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot bind loopback listener: %v", err)
	}

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// FileServer serves a single payload with configurable range support and
// failure injection, and tracks how clients talked to it.
type FileServer struct {
	Server *httptest.Server

	// Configuration
	Payload          []byte        // exact bytes to serve
	SupportsRanges   bool          // honor HTTP Range requests
	Latency          time.Duration // artificial latency per request
	FailAfterBytes   int64         // cut the connection after N bytes per request (0 = never)
	FailOnNthRequest int           // respond 500 to the Nth request (0 = never)

	// Tracking
	RequestCount  atomic.Int64
	RangeRequests atomic.Int64
	HeadRequests  atomic.Int64

	mu         sync.Mutex
	reqCounter int
}

// FileServerOption configures a FileServer.
type FileServerOption func(*FileServer)

// WithPayload sets the exact bytes the server serves.
func WithPayload(data []byte) FileServerOption {
	return func(s *FileServer) {
		s.Payload = data
	}
}

// WithSize serves a deterministic pseudo-payload of the given size.
func WithSize(size int64) FileServerOption {
	return func(s *FileServer) {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 251)
		}
		s.Payload = data
	}
}

// WithRangeSupport enables or disables Range request support.
func WithRangeSupport(enabled bool) FileServerOption {
	return func(s *FileServer) {
		s.SupportsRanges = enabled
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) FileServerOption {
	return func(s *FileServer) {
		s.Latency = d
	}
}

// WithFailAfterBytes cuts the connection after serving N bytes of a request.
func WithFailAfterBytes(n int64) FileServerOption {
	return func(s *FileServer) {
		s.FailAfterBytes = n
	}
}

// WithFailOnNthRequest makes the Nth request fail with a 500.
func WithFailOnNthRequest(n int) FileServerOption {
	return func(s *FileServer) {
		s.FailOnNthRequest = n
	}
}

// NewFileServer creates a mock file server, skipping the test if no
// listener can be bound.
func NewFileServer(t *testing.T, opts ...FileServerOption) *FileServer {
	t.Helper()
	s := &FileServer{
		Payload:        []byte("payload"),
		SupportsRanges: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = NewHTTPServerT(t, http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's base URL.
func (s *FileServer) URL() string {
	return s.Server.URL
}

// Close shuts the server down.
func (s *FileServer) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
}

func (s *FileServer) handle(w http.ResponseWriter, r *http.Request) {
	s.RequestCount.Add(1)

	s.mu.Lock()
	s.reqCounter++
	reqNum := s.reqCounter
	s.mu.Unlock()

	if s.FailOnNthRequest > 0 && reqNum == s.FailOnNthRequest {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}

	size := int64(len(s.Payload))

	if r.Method == http.MethodHead {
		s.HeadRequests.Add(1)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
		return
	}

	start := int64(0)
	end := size - 1
	rangeHeader := r.Header.Get("Range")

	if rangeHeader != "" && s.SupportsRanges {
		s.RangeRequests.Add(1)
		var err error
		start, end, err = parseRange(rangeHeader, size)
		if err != nil {
			http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if s.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
	}

	// Write in small chunks so fail-after-bytes can cut mid-body.
	length := end - start + 1
	written := int64(0)
	chunk := int64(8 * 1024)
	for written < length {
		if s.FailAfterBytes > 0 && written >= s.FailAfterBytes {
			// Abruptly stop writing; client sees a short body.
			return
		}
		n := chunk
		if length-written < n {
			n = length - written
		}
		if _, err := w.Write(s.Payload[start+written : start+written+n]); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		written += n
	}
}

// parseRange parses "bytes=start-end" / "bytes=start-" range headers.
func parseRange(rangeHeader string, size int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}
	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(spec, "-")
	if len(parts) != 2 || parts[0] == "" {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end := size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}
	if start < 0 || end >= size || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}

// ZipBytes builds an in-memory zip archive from name -> content pairs,
// in insertion-friendly map order. Useful for container inspection tests.
func ZipBytes(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
