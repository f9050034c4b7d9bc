package download

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"

	"github.com/romfetch-downloader/romfetch/internal/logging"
)

// Verify decides the terminal status of a successfully transferred task.
//
// Without an expected CRC the task is trivially complete. Otherwise the
// streamed checksum is compared case-insensitively; on mismatch, a
// downloaded container is inspected for an entry whose stored checksum
// matches exactly (mirrors sometimes wrap the expected payload in a fresh
// archive). Only an exact entry match passes; anything else is a
// checksum mismatch.
func Verify(task *Task) Status {
	if task.ExpectedCRC == "" {
		return StatusComplete
	}

	expected := strings.ToLower(task.ExpectedCRC)
	if strings.ToLower(task.ComputedCRC) == expected {
		return StatusComplete
	}

	log := logging.New("verify")

	if isContainer(task.DestPath) {
		match, err := containerHasCRC(task.DestPath, expected)
		if err != nil {
			log.Error().Err(err).Str("file", task.DestPath).Msg("container inspection failed")
		} else if match {
			log.Debug().Str("rom", task.RomName).Msg("expected checksum found inside container")
			return StatusComplete
		}
	}

	log.Warn().
		Str("rom", task.RomName).
		Str("expected", expected).
		Str("computed", task.ComputedCRC).
		Msg("checksum mismatch")
	return StatusCRCMismatch
}

// isContainer sniffs the file header for a zip signature.
func isContainer(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := f.Read(head)
	if n == 0 && err != nil {
		return false
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return false
	}
	return kind == matchers.TypeZip
}

// containerHasCRC reports whether any non-directory entry in the archive
// carries the target CRC-32. Stored checksums are read from the central
// directory; nothing is decompressed.
func containerHasCRC(path, target string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if fmt.Sprintf("%08x", f.CRC32) == target {
			return true, nil
		}
	}
	return false, nil
}

// ContainerEntryCRCs lists name -> stored CRC-32 for every file entry in
// a zip archive. Informational only; verification never trusts anything
// but an exact match against the expected checksum.
func ContainerEntryCRCs(path string) (map[string]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries[f.Name] = fmt.Sprintf("%08x", f.CRC32)
	}
	return entries, nil
}
