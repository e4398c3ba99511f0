// Package container gives analyzers read-only access to the parts of an
// OOXML or ODF zip package.
package container

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultMaxPartSize bounds the decompressed size of a single member read.
const DefaultMaxPartSize int64 = 64 << 20

var (
	// ErrNotAContainer is returned by Open when the input is not a readable zip.
	ErrNotAContainer = errors.New("not a zip container")

	// ErrPartAbsent is returned by Bytes when the member does not exist.
	ErrPartAbsent = errors.New("part not present")

	// ErrPartTooLarge is returned when a member exceeds the size limit.
	ErrPartTooLarge = errors.New("part exceeds size limit")

	ErrClosed = errors.New("container closed")
)

// Container is an open document package. A Container is owned by the
// goroutine that opened it and must be closed by it.
type Container struct {
	path    string
	zr      *zip.Reader
	closer  io.Closer
	family  Family
	maxPart int64

	entries map[string]*zip.File
	folded  map[string]string
	names   []string

	mu        sync.Mutex
	trees     map[string]*etree.Document
	malformed map[string]error
	closed    bool
}

// Open opens the package at path and detects its family.
func Open(path string) (*Container, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAContainer, filepath.Base(path), err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return newContainer(path, &rc.Reader, rc), nil
}

// OpenReader wraps an in-memory or otherwise random-access package.
func OpenReader(r io.ReaderAt, size int64, name string) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAContainer, name, err)
	}
	return newContainer(name, zr, nil), nil
}

// OpenBytes is OpenReader over a byte slice.
func OpenBytes(data []byte, name string) (*Container, error) {
	return OpenReader(bytes.NewReader(data), int64(len(data)), name)
}

func newContainer(path string, zr *zip.Reader, closer io.Closer) *Container {
	c := &Container{
		path:      path,
		zr:        zr,
		closer:    closer,
		maxPart:   DefaultMaxPartSize,
		entries:   make(map[string]*zip.File, len(zr.File)),
		folded:    make(map[string]string, len(zr.File)),
		trees:     make(map[string]*etree.Document),
		malformed: make(map[string]error),
	}
	for _, f := range zr.File {
		name := normalize(f.Name)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if _, dup := c.entries[name]; dup {
			continue
		}
		c.entries[name] = f
		c.folded[strings.ToLower(name)] = name
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)

	var mimetype string
	if data, err := c.Bytes("mimetype"); err == nil {
		mimetype = string(data)
	}
	c.family = DetectFamily(c.Has, mimetype)
	return c
}

func normalize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(name, "/")
}

// Path returns the location the container was opened from.
func (c *Container) Path() string { return c.path }

// Family returns the family detected at open time.
func (c *Container) Family() Family { return c.family }

// SetMaxPartSize changes the per-member read limit.
func (c *Container) SetMaxPartSize(n int64) {
	if n > 0 {
		c.maxPart = n
	}
}

func (c *Container) lookup(name string) (*zip.File, bool) {
	name = normalize(name)
	if f, ok := c.entries[name]; ok {
		return f, true
	}
	// Part names are case-insensitive in OPC.
	if real, ok := c.folded[strings.ToLower(name)]; ok {
		return c.entries[real], true
	}
	return nil, false
}

// Has reports whether the member exists.
func (c *Container) Has(name string) bool {
	_, ok := c.lookup(name)
	return ok
}

// Entries returns all member names in sorted order.
func (c *Container) Entries() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// List returns the sorted member names that start with prefix and end with
// suffix. Matching is case-insensitive.
func (c *Container) List(prefix, suffix string) []string {
	prefix = strings.ToLower(normalize(prefix))
	suffix = strings.ToLower(suffix)
	var out []string
	for _, name := range c.names {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, prefix) && strings.HasSuffix(lower, suffix) {
			out = append(out, name)
		}
	}
	return out
}

// Size returns the declared uncompressed size of a member, or -1.
func (c *Container) Size(name string) int64 {
	f, ok := c.lookup(name)
	if !ok {
		return -1
	}
	return int64(f.UncompressedSize64)
}

// Modified returns the zip timestamp of a member.
func (c *Container) Modified(name string) (time.Time, bool) {
	f, ok := c.lookup(name)
	if !ok {
		return time.Time{}, false
	}
	return f.Modified, !f.Modified.IsZero()
}

// Bytes reads a member fully, up to the part size limit.
func (c *Container) Bytes(name string) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	f, ok := c.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartAbsent, name)
	}
	if int64(f.UncompressedSize64) > c.maxPart {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrPartTooLarge, name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open member %s: %w", name, err)
	}
	defer rc.Close()

	// The declared size can lie.
	data, err := io.ReadAll(io.LimitReader(rc, c.maxPart+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read member %s: %w", name, err)
	}
	if int64(len(data)) > c.maxPart {
		return nil, fmt.Errorf("%w: %s", ErrPartTooLarge, name)
	}
	return data, nil
}

// XML returns the parsed tree of a member. It returns nil when the member is
// absent or cannot be parsed; parse failures are recorded and available from
// MalformedParts. Trees are cached and must be treated as read-only.
func (c *Container) XML(name string) *etree.Document {
	f, ok := c.lookup(name)
	if !ok {
		return nil
	}
	key := normalize(f.Name)

	c.mu.Lock()
	if doc, ok := c.trees[key]; ok {
		c.mu.Unlock()
		return doc
	}
	if _, bad := c.malformed[key]; bad {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := c.Bytes(key)
	if err != nil {
		c.markMalformed(key, err)
		return nil
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		c.markMalformed(key, err)
		return nil
	}
	if doc.Root() == nil {
		c.markMalformed(key, errors.New("document has no root element"))
		return nil
	}

	c.mu.Lock()
	c.trees[key] = doc
	c.mu.Unlock()
	return doc
}

func (c *Container) markMalformed(name string, err error) {
	if errors.Is(err, ErrClosed) {
		return
	}
	c.mu.Lock()
	c.malformed[name] = err
	c.mu.Unlock()
}

// MalformedParts returns the members that failed to parse, with the cause.
func (c *Container) MalformedParts() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error, len(c.malformed))
	for k, v := range c.malformed {
		out[k] = v
	}
	return out
}

// Close releases the underlying file. It is safe to call more than once.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.trees = map[string]*etree.Document{}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// charsetReader lets etree decode the occasional non UTF-8 part.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// FileModTime is a small helper for callers that need the on-disk timestamp.
func FileModTime(path string) time.Time {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return st.ModTime()
}
