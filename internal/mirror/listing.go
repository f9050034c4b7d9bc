package mirror

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// RemoteFile is one file visible in a mirror directory index. Size is 0
// when the listing does not expose it.
type RemoteFile struct {
	Name string
	URL  string
	Size int64
}

// Extensions of auxiliary metadata files that directory indexes carry
// alongside the ROM sets.
var skippedExtensions = []string{".xml", ".sqlite", ".txt", ".html"}

// List fetches a directory index and returns the files it links to.
// Listings are advisory: any network or parse failure is logged and
// yields an empty slice rather than an error.
func (c *Client) List(ctx context.Context, rawurl string) []RemoteFile {
	req, err := c.newRequest(ctx, http.MethodGet, rawurl)
	if err != nil {
		c.log.Error().Err(err).Str("url", rawurl).Msg("listing request failed")
		return nil
	}

	listCtx, cancel := context.WithTimeout(req.Context(), listTimeout)
	defer cancel()
	req = req.WithContext(listCtx)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("url", rawurl).Msg("listing fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("url", rawurl).Msg("listing returned non-OK status")
		return nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		c.log.Error().Err(err).Str("url", rawurl).Msg("listing parse failed")
		return nil
	}

	var files []RemoteFile
	for _, link := range collectAnchors(doc) {
		if !keepListingEntry(link.href, link.text) {
			continue
		}

		fileURL := link.href
		if !strings.HasPrefix(fileURL, "http") {
			fileURL = strings.TrimRight(rawurl, "/") + "/" + fileURL
		}

		name := link.text
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}

		files = append(files, RemoteFile{Name: name, URL: fileURL})
	}

	return files
}

// ListSystem resolves a system name through the catalog and lists its root.
func (c *Client) ListSystem(ctx context.Context, systemName string) []RemoteFile {
	root, ok := c.catalog.Resolve(systemName)
	if !ok {
		c.log.Warn().Str("system", systemName).Msg("system not in catalog")
		return nil
	}
	return c.List(ctx, root)
}

// Search lists a system's root and filters by a case-insensitive substring.
// An empty query returns the full listing.
func (c *Client) Search(ctx context.Context, systemName, query string) []RemoteFile {
	files := c.ListSystem(ctx, systemName)
	if query == "" {
		return files
	}
	q := strings.ToLower(query)
	matched := files[:0]
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), q) {
			matched = append(matched, f)
		}
	}
	return matched
}

// DirectoryURL returns the parent directory URL for a file URL.
func DirectoryURL(fileURL string) string {
	clean := fileURL
	if idx := strings.IndexAny(clean, "?#"); idx != -1 {
		clean = clean[:idx]
	}
	clean = strings.TrimRight(clean, "/")
	idx := strings.LastIndex(clean, "/")
	if idx < 0 {
		return fileURL
	}
	return clean[:idx+1]
}

type anchor struct {
	href string
	text string
}

// collectAnchors walks the parsed document and returns every <a> element
// with a non-empty href and text.
func collectAnchors(doc *html.Node) []anchor {
	var anchors []anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					break
				}
			}
			text := strings.TrimSpace(nodeText(n))
			if href != "" && text != "" {
				anchors = append(anchors, anchor{href: href, text: text})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return anchors
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// keepListingEntry filters out navigation links, subdirectories and
// auxiliary metadata files.
func keepListingEntry(href, text string) bool {
	switch href {
	case "..", "../", "/":
		return false
	}
	switch text {
	case "..", "Parent Directory", "Name":
		return false
	}
	if strings.HasSuffix(href, "/") {
		return false
	}
	lower := strings.ToLower(text)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}
