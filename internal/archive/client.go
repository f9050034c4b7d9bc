// Package archive is a read-only client for the Internet Archive, used as
// a fallback source when the primary mirror does not carry a ROM. All
// requests share a rate gate so batch lookups stay polite, and every
// search or metadata failure degrades to an empty result: the fallback
// must never break the pipeline it backs up.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/logging"
	"github.com/romfetch-downloader/romfetch/internal/rom"
)

const (
	defaultSearchURL   = "https://archive.org/advancedsearch.php"
	defaultMetadataURL = "https://archive.org/metadata"
	defaultDownloadURL = "https://archive.org/download"

	searchRows = 50
)

// Item is one archive.org item returned by a search.
type Item struct {
	Identifier  string
	Title       string
	Description string
}

// File is one file inside an archive.org item.
type File struct {
	Name   string
	Size   int64
	Format string
	CRC32  string
	MD5    string
	SHA1   string
}

// Client talks to archive.org. Safe for concurrent use; the rate gate
// serializes requests across goroutines.
type Client struct {
	HTTPClient *http.Client

	// Endpoint bases, overridable for tests.
	SearchURL   string
	MetadataURL string
	DownloadURL string

	minInterval time.Duration
	log         zerolog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates an archive.org client from the archive settings.
func NewClient(cfg config.ArchiveSettings) *Client {
	interval := cfg.MinRequestInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient:  &http.Client{Timeout: timeout},
		SearchURL:   defaultSearchURL,
		MetadataURL: defaultMetadataURL,
		DownloadURL: defaultDownloadURL,
		minInterval: interval,
		log:         logging.New("archive"),
	}
}

// throttle blocks until at least minInterval has passed since the last
// request. The lock is held through the sleep on purpose: concurrent
// callers queue up behind it instead of stampeding the API.
func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

func (c *Client) getJSON(ctx context.Context, rawurl string, out any) error {
	c.throttle()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Search queries archive.org full-text search for items matching a title,
// optionally scoped by a system name. Failures yield an empty slice.
func (c *Client) Search(ctx context.Context, title, system string) []Item {
	query := fmt.Sprintf(`title:(%q)`, title)
	if system != "" {
		query += fmt.Sprintf(` AND (%q)`, system)
	}
	return c.search(ctx, query)
}

// SearchByHash looks an item up by the strongest hash the record carries:
// SHA-1, then MD5, then CRC-32. Returns nil when no hash is available.
func (c *Client) SearchByHash(ctx context.Context, r rom.Info) []Item {
	switch {
	case r.SHA1 != "":
		return c.search(ctx, fmt.Sprintf("sha1:%s", strings.ToLower(r.SHA1)))
	case r.MD5 != "":
		return c.search(ctx, fmt.Sprintf("md5:%s", strings.ToLower(r.MD5)))
	case r.CRC32 != "":
		return c.search(ctx, fmt.Sprintf("crc32:%s", strings.ToLower(r.CRC32)))
	}
	return nil
}

func (c *Client) search(ctx context.Context, query string) []Item {
	params := url.Values{}
	params.Set("q", query)
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "description")
	params.Set("rows", strconv.Itoa(searchRows))
	params.Set("output", "json")

	var payload struct {
		Response struct {
			Docs []struct {
				Identifier  string     `json:"identifier"`
				Title       flexString `json:"title"`
				Description flexString `json:"description"`
			} `json:"docs"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, c.SearchURL+"?"+params.Encode(), &payload); err != nil {
		c.log.Error().Err(err).Str("query", query).Msg("search failed")
		return nil
	}

	items := make([]Item, 0, len(payload.Response.Docs))
	for _, doc := range payload.Response.Docs {
		if doc.Identifier == "" {
			continue
		}
		items = append(items, Item{
			Identifier:  doc.Identifier,
			Title:       string(doc.Title),
			Description: string(doc.Description),
		})
	}
	return items
}

// ItemFiles lists the files of an item via the metadata API. Failures
// yield an empty slice.
func (c *Client) ItemFiles(ctx context.Context, identifier string) []File {
	var payload struct {
		Result []struct {
			Name   string     `json:"name"`
			Size   flexString `json:"size"` // the API returns sizes as strings
			Format string     `json:"format"`
			CRC32  string     `json:"crc32"`
			MD5    string     `json:"md5"`
			SHA1   string     `json:"sha1"`
		} `json:"result"`
	}

	endpoint := fmt.Sprintf("%s/%s/files", strings.TrimRight(c.MetadataURL, "/"), url.PathEscape(identifier))
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		c.log.Error().Err(err).Str("item", identifier).Msg("metadata fetch failed")
		return nil
	}

	files := make([]File, 0, len(payload.Result))
	for _, f := range payload.Result {
		size, _ := strconv.ParseInt(string(f.Size), 10, 64)
		files = append(files, File{
			Name:   f.Name,
			Size:   size,
			Format: f.Format,
			CRC32:  strings.ToLower(f.CRC32),
			MD5:    strings.ToLower(f.MD5),
			SHA1:   strings.ToLower(f.SHA1),
		})
	}
	return files
}

// FileURL builds the direct download URL for a file within an item.
func (c *Client) FileURL(identifier, filename string) string {
	base := strings.TrimRight(c.DownloadURL, "/")
	return base + "/" + url.PathEscape(identifier) + "/" + url.PathEscape(filename)
}

// Download streams one item file to destPath. Unlike the mirror executor
// this transfer does not resume: archive fallback files are fetched once
// into a staging area. progress, if non-nil, receives (downloaded, total).
func (c *Client) Download(ctx context.Context, identifier, filename, destPath string, progress func(downloaded, total int64)) error {
	c.throttle()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(identifier, filename), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	// Large files outlive the metadata timeout; rely on the context.
	client := &http.Client{Transport: c.HTTPClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	total := resp.ContentLength
	downloaded := int64(0)
	buf := make([]byte, 64*1024)
	for {
		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			if _, writeErr := out.Write(buf[:nr]); writeErr != nil {
				return fmt.Errorf("write error: %w", writeErr)
			}
			downloaded += int64(nr)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("read error: %w", readErr)
		}
	}
	return out.Sync()
}

// BatchSearch runs a title search per ROM record and maps ROM name to
// result items. The shared rate gate paces the batch automatically.
func (c *Client) BatchSearch(ctx context.Context, roms []rom.Info) map[string][]Item {
	results := make(map[string][]Item, len(roms))
	for _, r := range roms {
		if ctx.Err() != nil {
			break
		}
		results[r.Name] = c.Search(ctx, r.SearchTerm(), r.SystemName)
	}
	return results
}

// flexString decodes a JSON value that may arrive as a string, a number,
// or an array of strings (title and description both vary in practice).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = flexString(strings.Join(arr, " "))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("unsupported JSON shape: %s", data)
}
