package autofetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romfetch-downloader/romfetch/internal/archive"
	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/rom"
	"github.com/romfetch-downloader/romfetch/internal/testutil"
)

// archiveStub wires an archive client to a fake archive.org with
// scriptable search, metadata and download responses.
type archiveStub struct {
	search   string
	metadata string
	payload  []byte

	downloadFails int // respond 500 to this many download requests first
}

func (s *archiveStub) client(t *testing.T) *archive.Client {
	t.Helper()
	failed := 0
	server := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/advancedsearch.php"):
			fmt.Fprint(w, s.search)
		case strings.HasPrefix(r.URL.Path, "/metadata/"):
			fmt.Fprint(w, s.metadata)
		case strings.HasPrefix(r.URL.Path, "/download/"):
			if failed < s.downloadFails {
				failed++
				http.Error(w, "flaky", http.StatusInternalServerError)
				return
			}
			w.Write(s.payload)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client := archive.NewClient(config.ArchiveSettings{
		MinRequestInterval: time.Millisecond,
		RequestTimeout:     5 * time.Second,
	})
	client.SearchURL = server.URL + "/advancedsearch.php"
	client.MetadataURL = server.URL + "/metadata"
	client.DownloadURL = server.URL + "/download"
	return client
}

func newTestFetcher(t *testing.T, stub *archiveStub, retries int) *Fetcher {
	t.Helper()
	return New(stub.client(t), config.ArchiveSettings{
		OutputRoot: t.TempDir(),
		MaxRetries: retries,
	})
}

func TestScoreFile(t *testing.T) {
	r := rom.Info{Name: "Some Game (USA).sfc", CRC32: "cafebabe"}

	tests := []struct {
		name string
		file archive.File
		want int
	}{
		{"exact match", archive.File{Name: "Some Game (USA).sfc", Size: 10}, scoreExactName + scoreHasSize},
		{"exact base different ext", archive.File{Name: "Some Game (USA).zip", Size: 10},
			scoreExactName + scoreArchiveExt + scoreHasSize},
		{"substring", archive.File{Name: "collection/Some Game (USA) [!].7z", Size: 10},
			scoreSubstring + scoreArchiveExt + scoreHasSize},
		{"crc in name", archive.File{Name: "dump-cafebabe.bin"}, scoreCRCInName},
		{"unrelated", archive.File{Name: "thumb.jpg"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreFile(tt.file, r))
		})
	}
}

func TestFetchExtractsContainer(t *testing.T) {
	content := []byte("rom image")
	stub := &archiveStub{
		search: `{"response":{"docs":[
			{"identifier":"long-collection","title":"A Very Long Collection Of Everything"},
			{"identifier":"snes-game","title":"Some Game"}
		]}}`,
		metadata: `{"result":[
			{"name":"thumb.jpg","size":"5"},
			{"name":"Some Game (USA).zip","size":"100"}
		]}`,
		payload: testutil.ZipBytes(t, map[string][]byte{"Some Game (USA).sfc": content}),
	}
	fetcher := newTestFetcher(t, stub, 1)

	var milestones []int
	finalPath, err := fetcher.Fetch(context.Background(),
		rom.Info{Name: "Some Game (USA).sfc", SystemName: "Nintendo - SNES"},
		func(pct int, _ string) { milestones = append(milestones, pct) })
	require.NoError(t, err)

	// Shortest title wins, the container is unpacked, and the result
	// lands under OutputRoot/system/name.
	assert.Equal(t, filepath.Join(fetcher.OutputRoot, "Nintendo - SNES", "Some Game (USA).sfc"), finalPath)
	got, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NotEmpty(t, milestones)
	assert.Equal(t, 2, milestones[0])
	assert.Equal(t, 100, milestones[len(milestones)-1])
}

func TestFetchKeepsZipWhenRomIsZip(t *testing.T) {
	payload := testutil.ZipBytes(t, map[string][]byte{"inner.sfc": []byte("rom")})
	stub := &archiveStub{
		search:   `{"response":{"docs":[{"identifier":"item","title":"Item"}]}}`,
		metadata: `{"result":[{"name":"Some Game (USA).zip","size":"100"}]}`,
		payload:  payload,
	}
	fetcher := newTestFetcher(t, stub, 1)

	finalPath, err := fetcher.Fetch(context.Background(),
		rom.Info{Name: "Some Game (USA).zip", SystemName: "snes"}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "a requested zip is stored as-is")
}

func TestFetchStagesUnderOutputRootDespiteTraversalName(t *testing.T) {
	content := []byte("rom image")
	stub := &archiveStub{
		search: `{"response":{"docs":[{"identifier":"item","title":"Item"}]}}`,
		metadata: `{"result":[
			{"name":"../../../Some Game (USA).zip","size":"100"}
		]}`,
		payload: testutil.ZipBytes(t, map[string][]byte{"Some Game (USA).sfc": content}),
	}
	fetcher := newTestFetcher(t, stub, 1)

	finalPath, err := fetcher.Fetch(context.Background(),
		rom.Info{Name: "Some Game (USA).sfc", SystemName: "snes"}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// A path-traversal name in the item metadata must not place files
	// outside the output root.
	outside := filepath.Join(filepath.Dir(fetcher.OutputRoot), "Some Game (USA).zip")
	_, statErr := os.Stat(outside)
	assert.True(t, os.IsNotExist(statErr), "staged file escaped the output root")
}

func TestFetchNotFound(t *testing.T) {
	stub := &archiveStub{search: `{"response":{"docs":[]}}`}
	fetcher := newTestFetcher(t, stub, 1)

	_, err := fetcher.Fetch(context.Background(), rom.Info{Name: "Ghost Game.sfc"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchNoPlausibleFile(t *testing.T) {
	stub := &archiveStub{
		search:   `{"response":{"docs":[{"identifier":"item","title":"Item"}]}}`,
		metadata: `{"result":[{"name":"thumb.jpg"}]}`,
	}
	fetcher := newTestFetcher(t, stub, 1)

	_, err := fetcher.Fetch(context.Background(), rom.Info{Name: "Some Game.sfc"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryDownloadGivesUpAfterMaxRetries(t *testing.T) {
	stub := &archiveStub{
		search:        `{"response":{"docs":[{"identifier":"item","title":"Item"}]}}`,
		metadata:      `{"result":[{"name":"Some Game.zip","size":"10"}]}`,
		downloadFails: 10,
	}
	fetcher := newTestFetcher(t, stub, 1)

	_, err := fetcher.Fetch(context.Background(), rom.Info{Name: "Some Game.sfc"}, nil)
	assert.ErrorContains(t, err, "after 1 attempts")
}

func TestSanitizeComponent(t *testing.T) {
	assert.Equal(t, "Sega - Mega-CD - Sega-CD", sanitizeComponent("Sega - Mega-CD - Sega-CD"))
	assert.Equal(t, "a-b-c", sanitizeComponent("a/b:c"))
	assert.Equal(t, "unknown", sanitizeComponent(""))
}
