package recon

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// CompositeSeparator joins an archive path and the entry inside it.
const CompositeSeparator = "::"

// ErrEntryTooLarge is returned for inner entries above the size ceiling.
var ErrEntryTooLarge = errors.New("archive entry exceeds size limit")

// CompositePath returns the record path of an entry inside an archive.
func CompositePath(archive, inner string) string {
	return archive + CompositeSeparator + inner
}

// SplitCompositePath reverses CompositePath. Entry names may contain the
// separator themselves, so the split is made after the first prefix that
// names a zip archive.
func SplitCompositePath(p string) (archive, inner string, ok bool) {
	first := -1
	for off := 0; ; {
		i := strings.Index(p[off:], CompositeSeparator)
		if i < 0 {
			break
		}
		i += off
		if first < 0 {
			first = i
		}
		if IsArchive(p[:i]) {
			return p[:i], p[i+len(CompositeSeparator):], true
		}
		off = i + 1
	}
	if first < 0 {
		return p, "", false
	}
	return p[:first], p[first+len(CompositeSeparator):], true
}

// ArchiveEntry is a document found inside a zip input.
type ArchiveEntry struct {
	Name     string
	Size     uint64
	Modified time.Time
}

// ListArchive returns the document entries of a zip archive and the number of
// document entries skipped for exceeding maxSize.
func ListArchive(archivePath string, maxSize int64) ([]ArchiveEntry, int, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	var entries []ArchiveEntry
	skipped := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !IsDocument(f.Name) || isLockFile(f.Name) {
			continue
		}
		if maxSize > 0 && f.UncompressedSize64 > uint64(maxSize) {
			skipped++
			continue
		}
		entries = append(entries, ArchiveEntry{
			Name:     f.Name,
			Size:     f.UncompressedSize64,
			Modified: f.Modified,
		})
	}
	return entries, skipped, nil
}

// extractEntry copies one entry of archivePath into dir and returns the path
// of the copy. Only the base name of the entry is used on disk. The copy is
// cut off at maxSize even when the header under-reports the size.
func extractEntry(archivePath, inner, dir string, maxSize int64) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == inner {
			entry = f
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("entry %s not found in %s", inner, archivePath)
	}
	if maxSize > 0 && entry.UncompressedSize64 > uint64(maxSize) {
		return "", fmt.Errorf("%w: %s", ErrEntryTooLarge, inner)
	}

	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open entry %s: %w", inner, err)
	}
	defer rc.Close()

	dst := filepath.Join(dir, path.Base(strings.ReplaceAll(inner, "\\", "/")))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	var src io.Reader = rc
	if maxSize > 0 {
		src = io.LimitReader(rc, maxSize+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", inner, err)
	}
	if maxSize > 0 && n > maxSize {
		return "", fmt.Errorf("%w: %s", ErrEntryTooLarge, inner)
	}
	return dst, nil
}
