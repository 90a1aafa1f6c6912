// Package archive reads retrieve archives in memory and tags each entry with
// its metadata family.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

// ArchiveError reports a container that cannot be opened or an entry whose
// body cannot be read. It is permanent for the run.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Entry is one file of the archive. Content is nil for Unknown entries.
type Entry struct {
	Path    string
	Family  schemas.Family
	Content []byte
}

// Known reports whether the entry belongs to a family in the suffix table.
func (e Entry) Known() bool { return e.Family != schemas.FamilyUnknown }

// Name is the canonical component name of the entry.
func (e Entry) Name() string { return CanonicalName(e.Path) }

// Label is the base file name, kept for display.
func (e Entry) Label() string { return path.Base(e.Path) }

// Text returns the content as storable UTF-8: a leading byte order mark is
// dropped, invalid sequences become U+FFFD and NUL bytes are removed.
func (e Entry) Text() string {
	clean := strings.ToValidUTF8(string(e.Content), "\uFFFD")
	decoded, err := unicode.UTF8BOM.NewDecoder().String(clean)
	if err != nil {
		decoded = clean
	}
	return strings.ReplaceAll(decoded, "\x00", "")
}

// Archive is an opened, in-memory zip container.
type Archive struct {
	zr   *zip.Reader
	size int
}

// Open parses the zip directory of data without touching the disk.
func Open(data []byte) (*Archive, error) {
	if len(data) == 0 {
		return nil, &ArchiveError{Op: "open", Err: fmt.Errorf("archive is empty")}
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ArchiveError{Op: "open", Err: err}
	}
	return &Archive{zr: zr, size: len(data)}, nil
}

// Size is the length of the archive in bytes.
func (a *Archive) Size() int { return a.size }

// Entries yields every file entry in directory order. Directory entries are
// skipped. The sequence can be ranged over again to restart from the top.
// A read failure on a known entry is yielded as an *ArchiveError and ends
// the sequence.
func (a *Archive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, f := range a.zr.File {
			if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
				continue
			}
			entry := Entry{Path: f.Name, Family: FamilyOf(f.Name)}
			if !entry.Known() {
				if !yield(entry, nil) {
					return
				}
				continue
			}
			content, err := readFile(f)
			if err != nil {
				yield(Entry{}, &ArchiveError{Op: "read", Path: f.Name, Err: err})
				return
			}
			entry.Content = content
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Classify opens data and collects its entries. It is a convenience for
// callers that want the whole listing at once.
func Classify(data []byte) ([]Entry, error) {
	a, err := Open(data)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for entry, err := range a.Entries() {
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
