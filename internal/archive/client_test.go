package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/rom"
	"github.com/romfetch-downloader/romfetch/internal/testutil"
)

func newTestClient(t *testing.T, handler http.Handler, interval time.Duration) *Client {
	t.Helper()
	server := testutil.NewHTTPServerT(t, handler)
	t.Cleanup(server.Close)

	client := NewClient(config.ArchiveSettings{
		MinRequestInterval: interval,
		RequestTimeout:     5 * time.Second,
	})
	client.SearchURL = server.URL + "/advancedsearch.php"
	client.MetadataURL = server.URL + "/metadata"
	client.DownloadURL = server.URL + "/download"
	return client
}

const searchResponse = `{
	"response": {
		"docs": [
			{"identifier": "snes-collection", "title": "SNES Collection", "description": ["disc one", "verified"]},
			{"identifier": "other-item", "title": ["Other", "Item"]},
			{"identifier": "", "title": "orphan"}
		]
	}
}`

func TestSearchParsesFlexibleFields(t *testing.T) {
	var query string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		fmt.Fprint(w, searchResponse)
	}), time.Millisecond)

	items := client.Search(context.Background(), "Some Game", "snes")

	require.Len(t, items, 2, "docs without identifiers are dropped")
	assert.Equal(t, "snes-collection", items[0].Identifier)
	assert.Equal(t, "SNES Collection", items[0].Title)
	assert.Equal(t, "disc one verified", items[0].Description)
	assert.Equal(t, "Other Item", items[1].Title)
	assert.Contains(t, query, `title:("Some Game")`)
	assert.Contains(t, query, `AND ("snes")`)
}

func TestSearchByHashPrefersStrongest(t *testing.T) {
	var queries []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"response":{"docs":[]}}`)
	}), time.Millisecond)

	client.SearchByHash(context.Background(), rom.Info{
		SHA1: "ABCD", MD5: "1234", CRC32: "cafebabe",
	})
	client.SearchByHash(context.Background(), rom.Info{MD5: "1234", CRC32: "cafebabe"})
	client.SearchByHash(context.Background(), rom.Info{CRC32: "CAFEBABE"})

	require.Len(t, queries, 3)
	assert.Equal(t, "sha1:abcd", queries[0])
	assert.Equal(t, "md5:1234", queries[1])
	assert.Equal(t, "crc32:cafebabe", queries[2])
}

func TestSearchByHashWithoutHashes(t *testing.T) {
	client := NewClient(config.ArchiveSettings{})
	assert.Nil(t, client.SearchByHash(context.Background(), rom.Info{Name: "Game"}))
}

func TestSearchFailureYieldsEmpty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}), time.Millisecond)

	assert.Empty(t, client.Search(context.Background(), "Some Game", ""))
}

func TestItemFilesParsesStringSizes(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metadata/snes-collection/files", r.URL.Path)
		fmt.Fprint(w, `{"result":[
			{"name":"Some Game (USA).zip","size":"2048","format":"ZIP","crc32":"CAFEBABE"},
			{"name":"thumb.jpg","size":"77","format":"JPEG"}
		]}`)
	}), time.Millisecond)

	files := client.ItemFiles(context.Background(), "snes-collection")

	require.Len(t, files, 2)
	assert.Equal(t, "Some Game (USA).zip", files[0].Name)
	assert.Equal(t, int64(2048), files[0].Size)
	assert.Equal(t, "cafebabe", files[0].CRC32, "hashes are normalized to lowercase")
}

func TestRateGateSpacesRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"docs":[]}}`)
	}), 100*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		client.Search(context.Background(), "Some Game", "")
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond,
		"three requests need two full intervals between them")
}

func TestDownloadWritesFileAndReportsProgress(t *testing.T) {
	payload := []byte("archive file contents")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/snes-collection/Some%20Game%20(USA).zip", r.URL.EscapedPath())
		w.Write(payload)
	}), time.Millisecond)

	dest := filepath.Join(t.TempDir(), "staging", "game.zip")
	var lastDownloaded int64
	err := client.Download(context.Background(), "snes-collection", "Some Game (USA).zip", dest,
		func(downloaded, total int64) { lastDownloaded = downloaded })
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), lastDownloaded)
}

func TestDownloadHTTPError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), time.Millisecond)

	dest := filepath.Join(t.TempDir(), "game.zip")
	err := client.Download(context.Background(), "item", "file.zip", dest, nil)
	assert.ErrorContains(t, err, "unexpected status code")
}

func TestBatchSearch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"docs":[{"identifier":"hit","title":"Hit"}]}}`)
	}), time.Millisecond)

	results := client.BatchSearch(context.Background(), []rom.Info{
		{Name: "Game A (USA).zip"},
		{Name: "Game B (Europe).zip"},
	})

	require.Len(t, results, 2)
	assert.Len(t, results["Game A (USA).zip"], 1)
}

func TestFlexStringNumeric(t *testing.T) {
	var f flexString
	require.NoError(t, json.Unmarshal([]byte(`42`), &f))
	assert.Equal(t, "42", string(f))
}
