package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romfetch-downloader/romfetch/internal/catalog"
	"github.com/romfetch-downloader/romfetch/internal/testutil"
)

// listingHTML imitates a Myrient directory index: parent navigation,
// subdirectories, metadata files and percent-encoded ROM entries.
const listingHTML = `<html><body><table>
<tr><td><a href="../">Parent Directory</a></td></tr>
<tr><td><a href="..">..</a></td></tr>
<tr><td><a href="extras/">extras/</a></td></tr>
<tr><td><a href="Some%20Game%20(USA).zip">Some Game (USA).zip</a></td></tr>
<tr><td><a href="Another%20Game%20(Europe).zip">Another Game (Europe).zip</a></td></tr>
<tr><td><a href="datfile.xml">datfile.xml</a></td></tr>
<tr><td><a href="index.sqlite">index.sqlite</a></td></tr>
<tr><td><a href="notes.txt">notes.txt</a></td></tr>
</table></body></html>`

func testCatalog(t *testing.T, base string) *catalog.Catalog {
	t.Helper()
	doc := fmt.Sprintf(`
base: %s
entries:
  - system: "Nintendo - Super Nintendo Entertainment System"
    path: "No-Intro/Nintendo%%20-%%20Super%%20Nintendo%%20Entertainment%%20System"
`, base)
	cat, err := catalog.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return cat
}

func TestListFiltersIndexEntries(t *testing.T) {
	server := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, listingHTML)
	}))
	defer server.Close()

	client := New(testCatalog(t, server.URL))
	files := client.List(context.Background(), server.URL+"/files/dir/")

	require.Len(t, files, 2, "only ROM archives should survive the filter")
	assert.Equal(t, "Some Game (USA).zip", files[0].Name)
	assert.Equal(t, server.URL+"/files/dir/Some%20Game%20(USA).zip", files[0].URL)
	assert.Equal(t, "Another Game (Europe).zip", files[1].Name)
}

func TestListKeepsAbsoluteHrefs(t *testing.T) {
	page := `<a href="https://cdn.example.test/Game.zip">Game.zip</a>`
	server := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	client := New(testCatalog(t, server.URL))
	files := client.List(context.Background(), server.URL+"/dir/")

	require.Len(t, files, 1)
	assert.Equal(t, "https://cdn.example.test/Game.zip", files[0].URL)
}

func TestListFailuresYieldEmpty(t *testing.T) {
	server := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(testCatalog(t, server.URL))
	assert.Empty(t, client.List(context.Background(), server.URL+"/missing/"))
	assert.Empty(t, client.List(context.Background(), "http://127.0.0.1:1/unreachable/"))
}

func TestListSystemUnknownSystem(t *testing.T) {
	client := New(testCatalog(t, "https://example.test"))
	assert.Empty(t, client.ListSystem(context.Background(), "No Such Console"))
}

func TestSearchFiltersBySubstring(t *testing.T) {
	var requested string
	server := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		io.WriteString(w, listingHTML)
	}))
	defer server.Close()

	client := New(testCatalog(t, server.URL))

	files := client.Search(context.Background(), "Super Nintendo", "another")
	require.Len(t, files, 1)
	assert.Equal(t, "Another Game (Europe).zip", files[0].Name)
	assert.Contains(t, requested, "Super%20Nintendo")

	all := client.Search(context.Background(), "Super Nintendo", "")
	assert.Len(t, all, 2)
}

func TestDirectoryURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain file", "https://m.test/files/snes/Game.zip", "https://m.test/files/snes/"},
		{"query string stripped", "https://m.test/files/snes/Game.zip?token=1", "https://m.test/files/snes/"},
		{"trailing slash", "https://m.test/files/snes/", "https://m.test/files/"},
		{"no slash", "Game.zip", "Game.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectoryURL(tt.in))
		})
	}
}
