package mirror

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/romfetch-downloader/romfetch/internal/rom"
)

// CandidateURL builds the likely direct-download URL for a ROM entry name
// under a system root. Mirrors store entries zipped, so a name without an
// archive extension gets its extension swapped for .zip.
func CandidateURL(systemURL, romFilename string) string {
	if !strings.HasSuffix(strings.ToLower(romFilename), ".zip") {
		ext := path.Ext(romFilename)
		romFilename = strings.TrimSuffix(romFilename, ext) + ".zip"
	}
	return strings.TrimRight(systemURL, "/") + "/" + url.PathEscape(romFilename)
}

// RomURL derives the direct download URL for a catalog-identified ROM.
//
// With validate false the candidate is returned unchecked: batch queueing
// resolves many URLs and most already exist, so the extra round-trip per
// ROM is not worth it. With validate true the candidate is probed once
// via HEAD and the result cached by URL, so repeated calls for the same
// ROM never re-probe.
func (c *Client) RomURL(ctx context.Context, r rom.Info, validate bool) (string, bool) {
	systemURL, ok := c.catalog.Resolve(r.SystemName)
	if !ok {
		return "", false
	}

	candidate := CandidateURL(systemURL, r.Name)
	if !validate {
		return candidate, true
	}

	c.mu.Lock()
	exists, cached := c.probeCache[candidate]
	c.mu.Unlock()
	if cached {
		return candidate, exists
	}

	exists = c.probe(ctx, candidate)

	c.mu.Lock()
	c.probeCache[candidate] = exists
	c.mu.Unlock()

	return candidate, exists
}

// probe performs a HEAD existence check for a candidate URL.
func (c *Client) probe(ctx context.Context, rawurl string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(probeCtx, http.MethodHead, rawurl)
	if err != nil {
		c.log.Error().Err(err).Str("url", rawurl).Msg("probe request failed")
		return false
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("url", rawurl).Msg("probe failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
