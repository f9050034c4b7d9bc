// Package autofetch automates the archive.org fallback path: given a ROM
// record, it finds the most plausible item and file, downloads it with
// retries, unpacks containers and places the result in the output tree.
package autofetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romfetch-downloader/romfetch/internal/archive"
	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/logging"
	"github.com/romfetch-downloader/romfetch/internal/rom"
)

// ErrNotFound means no archive.org item or file plausibly matches the ROM.
var ErrNotFound = errors.New("no matching archive item found")

// Report receives coarse progress: percent in [0,100] plus a short message.
type Report func(percent int, message string)

// File match scores. An exact filename match dwarfs everything else;
// weaker signals only break ties between otherwise equal candidates.
const (
	scoreExactName  = 100
	scoreSubstring  = 60
	scoreCRCInName  = 25
	scoreArchiveExt = 5
	scoreHasSize    = 1
)

// Fetcher runs one ROM acquisition end to end.
type Fetcher struct {
	Archive    *archive.Client
	OutputRoot string
	MaxRetries int

	log zerolog.Logger
}

// New creates a fetcher over an archive client.
func New(client *archive.Client, cfg config.ArchiveSettings) *Fetcher {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Fetcher{
		Archive:    client,
		OutputRoot: cfg.OutputRoot,
		MaxRetries: retries,
		log:        logging.New("autofetch"),
	}
}

// Fetch acquires one ROM and returns the final path under
// OutputRoot/system/name. report may be nil.
func (f *Fetcher) Fetch(ctx context.Context, r rom.Info, report Report) (string, error) {
	notify := func(pct int, msg string) {
		if report != nil {
			report(pct, msg)
		}
	}

	notify(2, "searching archive")
	item, err := f.findBestItem(ctx, r)
	if err != nil {
		return "", err
	}
	f.log.Info().Str("rom", r.Name).Str("item", item.Identifier).Msg("item selected")

	notify(10, "inspecting item files")
	file, err := f.pickBestFile(ctx, item, r)
	if err != nil {
		return "", err
	}
	f.log.Info().Str("rom", r.Name).Str("file", file.Name).Msg("file selected")

	notify(20, "downloading")
	staging := filepath.Join(f.OutputRoot, ".staging", item.Identifier)
	// The metadata filename is remote input; only its base name may pick
	// the on-disk location.
	stagedPath := filepath.Join(staging, filepath.Base(file.Name))
	err = f.retryDownload(ctx, item.Identifier, file.Name, stagedPath, func(downloaded, total int64) {
		if total > 0 {
			// Map transfer progress onto the 20-80 band.
			notify(20+int(downloaded*60/total), "downloading")
		}
	})
	if err != nil {
		return "", err
	}

	notify(84, "preparing file")
	finalPath, err := f.prepare(stagedPath, r)
	if err != nil {
		return "", err
	}
	_ = os.RemoveAll(staging)

	notify(100, "complete")
	return finalPath, nil
}

// findBestItem tries a hash lookup first and falls back to a text search.
// Among the candidates the shortest title wins: collection dumps carry
// long descriptive titles, single-game items terse ones.
func (f *Fetcher) findBestItem(ctx context.Context, r rom.Info) (archive.Item, error) {
	items := f.Archive.SearchByHash(ctx, r)
	if len(items) == 0 {
		items = f.Archive.Search(ctx, r.SearchTerm(), r.SystemName)
	}
	if len(items) == 0 {
		return archive.Item{}, fmt.Errorf("%w: %s", ErrNotFound, r.Name)
	}

	best := items[0]
	for _, item := range items[1:] {
		if item.Title != "" && (best.Title == "" || len(item.Title) < len(best.Title)) {
			best = item
		}
	}
	return best, nil
}

// pickBestFile scores every file in the item against the ROM record and
// returns the highest scorer. Zero total score means nothing plausible.
func (f *Fetcher) pickBestFile(ctx context.Context, item archive.Item, r rom.Info) (archive.File, error) {
	files := f.Archive.ItemFiles(ctx, item.Identifier)
	if len(files) == 0 {
		return archive.File{}, fmt.Errorf("%w: item %s has no files", ErrNotFound, item.Identifier)
	}

	bestScore := 0
	var best archive.File
	for _, file := range files {
		score := scoreFile(file, r)
		if score > bestScore {
			bestScore = score
			best = file
		}
	}
	if bestScore == 0 {
		return archive.File{}, fmt.Errorf("%w: no file in %s matches %s", ErrNotFound, item.Identifier, r.Name)
	}
	return best, nil
}

func scoreFile(file archive.File, r rom.Info) int {
	name := strings.ToLower(file.Name)
	want := strings.ToLower(r.Name)
	wantBase := strings.TrimSuffix(want, path.Ext(want))

	score := 0
	switch {
	case name == want || strings.TrimSuffix(name, path.Ext(name)) == wantBase:
		score += scoreExactName
	case wantBase != "" && strings.Contains(name, wantBase):
		score += scoreSubstring
	}
	if r.CRC32 != "" && strings.Contains(name, strings.ToLower(r.CRC32)) {
		score += scoreCRCInName
	}
	switch path.Ext(name) {
	case ".zip", ".7z":
		score += scoreArchiveExt
	}
	if file.Size > 0 {
		score += scoreHasSize
	}
	return score
}

// retryDownload downloads with a short linear backoff between attempts.
func (f *Fetcher) retryDownload(ctx context.Context, identifier, filename, destPath string, progress func(int64, int64)) error {
	var lastErr error
	for attempt := 1; attempt <= f.MaxRetries; attempt++ {
		lastErr = f.Archive.Download(ctx, identifier, filename, destPath, progress)
		if lastErr == nil {
			return nil
		}
		f.log.Warn().Err(lastErr).Int("attempt", attempt).Str("file", filename).Msg("download attempt failed")

		if attempt == f.MaxRetries {
			break
		}
		backoff := time.Duration(2*attempt) * time.Second
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", f.MaxRetries, lastErr)
}

// prepare moves the staged file into the output tree, unpacking a zip
// container when the ROM itself is not a zip. The preferred member is the
// one whose basename matches the ROM name; otherwise the first file entry.
func (f *Fetcher) prepare(stagedPath string, r rom.Info) (string, error) {
	destDir := filepath.Join(f.OutputRoot, sanitizeComponent(r.SystemName))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	destPath := filepath.Join(destDir, r.Name)

	wantZip := strings.EqualFold(path.Ext(r.Name), ".zip")
	isZip := strings.EqualFold(filepath.Ext(stagedPath), ".zip")

	if isZip && !wantZip {
		if err := extractMember(stagedPath, r.Name, destPath); err != nil {
			return "", err
		}
		return destPath, nil
	}

	if err := moveFile(stagedPath, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

// extractMember copies one entry out of a zip archive.
func extractMember(zipPath, wantName, destPath string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer zr.Close()

	var chosen *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Base(zf.Name), wantName) {
			chosen = zf
			break
		}
		if chosen == nil {
			chosen = zf
		}
	}
	if chosen == nil {
		return fmt.Errorf("container %s has no file entries", zipPath)
	}

	rc, err := chosen.Open()
	if err != nil {
		return fmt.Errorf("open container entry: %w", err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extract entry: %w", err)
	}
	return out.Sync()
}

// moveFile renames where possible and falls back to copy+remove across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return os.Remove(src)
}

// sanitizeComponent makes a system name safe as a directory name.
func sanitizeComponent(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, name)
}
