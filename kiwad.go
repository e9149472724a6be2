// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/gobwas/glob"
	"github.com/klauspost/compress/zlib"

	"github.com/katsuba-go/katsuba/log"
)

var kiwadMagic = []byte("KIWAD")

// journalEntry is one parsed KIWAD journal record.
type journalEntry struct {
	offset         uint32
	size           uint32 // uncompressed size
	compressedSize int32  // -1, or equal to size, means "stored"
	crc            uint32
	compressed     bool
	name           string
}

// onDiskLen returns how many payload bytes e actually occupies, honoring
// the "-1 or equal to uncompressed size means stored" escape hatch even
// when the is_compressed byte says otherwise.
func (e journalEntry) onDiskLen() uint32 {
	if e.isEffectivelyCompressed() {
		return uint32(e.compressedSize)
	}
	return e.size
}

func (e journalEntry) isEffectivelyCompressed() bool {
	return e.compressed && e.compressedSize >= 0 && uint32(e.compressedSize) != e.size
}

// Archive is a random-access KIWAD container, backed either by an owned
// in-memory buffer (Heap) or a read-only memory mapping (Mmap). It is
// immutable after construction and safe to share across goroutines;
// Deserialize's scratch buffer for compressed entries is pooled rather
// than held on the Archive itself for exactly that reason.
type Archive struct {
	data    []byte
	mapping mmap.MMap // nil unless backed by Mmap
	version uint32
	flags   uint8
	entries []journalEntry
	byName  map[string]int
	logger  *log.Helper
}

func defaultArchiveLogger() *log.Helper {
	return log.NewHelper(log.NewFilter(log.NewStdLogger(nil), log.FilterLevel(log.LevelError)))
}

// Heap reads path entirely into an owned buffer.
func Heap(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := newArchive(data, nil)
	if err != nil {
		return nil, err
	}
	a.logger = defaultArchiveLogger()
	a.logger.Debugf("opened %s as heap archive: %d entries, %s", path, a.Len(), humanize.Bytes(uint64(len(data))))
	return a, nil
}

// Mmap memory-maps path read-only. The file handle is closed immediately
// after mapping.
func Mmap(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("katsuba: mmap %s: %w", path, err)
	}
	if closeErr != nil {
		m.Unmap()
		return nil, closeErr
	}

	a, err := newArchive([]byte(m), m)
	if err != nil {
		m.Unmap()
		return nil, err
	}
	a.logger = defaultArchiveLogger()
	a.logger.Debugf("opened %s as mmap archive: %d entries, %s", path, a.Len(), humanize.Bytes(uint64(len(m))))
	return a, nil
}

func newArchive(data []byte, mapping mmap.MMap) (*Archive, error) {
	version, count, flags, rest, err := parseKiwadHeader(data)
	if err != nil {
		return nil, err
	}
	entries, payload, err := parseJournal(rest, count)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		data:    payload,
		mapping: mapping,
		version: version,
		flags:   flags,
		entries: entries,
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		a.byName[e.name] = i
	}
	return a, nil
}

func parseKiwadHeader(data []byte) (version, count uint32, flags uint8, rest []byte, err error) {
	if len(data) < len(kiwadMagic) || !bytes.Equal(data[:len(kiwadMagic)], kiwadMagic) {
		return 0, 0, 0, nil, ErrBadMagic
	}
	data = data[len(kiwadMagic):]

	if len(data) < 8 {
		return 0, 0, 0, nil, fmt.Errorf("katsuba: %w: truncated header", ErrCorrupt)
	}
	version = binary.LittleEndian.Uint32(data[0:4])
	count = binary.LittleEndian.Uint32(data[4:8])
	data = data[8:]

	if version != 1 && version != 2 {
		return 0, 0, 0, nil, ErrBadVersion
	}

	flags = 1
	if version >= 2 {
		if len(data) < 1 {
			return 0, 0, 0, nil, fmt.Errorf("katsuba: %w: truncated header flags", ErrCorrupt)
		}
		flags = data[0]
		data = data[1:]
	}

	return version, count, flags, data, nil
}

// journalEntryFixedSize is the byte size of a journal record excluding
// its variable-length trailing name.
const journalEntryFixedSize = 4 + 4 + 4 + 4 + 1 + 4

func parseJournal(data []byte, count uint32) ([]journalEntry, []byte, error) {
	entries := make([]journalEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < journalEntryFixedSize {
			return nil, nil, fmt.Errorf("katsuba: %w: truncated journal entry %d", ErrCorrupt, i)
		}
		offset := binary.LittleEndian.Uint32(data[0:4])
		size := binary.LittleEndian.Uint32(data[4:8])
		compressedSize := int32(binary.LittleEndian.Uint32(data[8:12]))
		crc := binary.LittleEndian.Uint32(data[12:16])
		compressed := data[16] != 0
		nameLen := binary.LittleEndian.Uint32(data[17:21])
		data = data[journalEntryFixedSize:]

		if uint64(nameLen) > uint64(len(data)) {
			return nil, nil, fmt.Errorf("katsuba: %w: journal entry %d name overruns journal", ErrCorrupt, i)
		}
		name := string(bytes.TrimRight(data[:nameLen], "\x00"))
		data = data[nameLen:]

		entries = append(entries, journalEntry{
			offset:         offset,
			size:           size,
			compressedSize: compressedSize,
			crc:            crc,
			compressed:     compressed,
			name:           name,
		})
	}
	return entries, data, nil
}

// Len reports the number of journal entries.
func (a *Archive) Len() int { return len(a.entries) }

// Contains reports whether path names an entry.
func (a *Archive) Contains(path string) bool {
	_, ok := a.byName[path]
	return ok
}

func (a *Archive) rawBytes(e journalEntry) ([]byte, error) {
	n := e.onDiskLen()
	start := uint64(e.offset)
	end := start + uint64(n)
	if end < start || end > uint64(len(a.data)) {
		return nil, fmt.Errorf("katsuba: %w: entry %q offset/size out of bounds", ErrCorrupt, e.name)
	}
	return a.data[start:end], nil
}

func verifyEntryCRC(raw []byte, want uint32) error {
	if crc32.ChecksumIEEE(raw) != want {
		return fmt.Errorf("katsuba: %w: CRC mismatch", ErrCorrupt)
	}
	return nil
}

// Get returns the decompressed bytes of the entry at path, a fresh copy
// the caller owns outright.
func (a *Archive) Get(path string) ([]byte, error) {
	idx, ok := a.byName[path]
	if !ok {
		return nil, ErrNotInArchive
	}
	e := a.entries[idx]

	raw, err := a.rawBytes(e)
	if err != nil {
		return nil, err
	}
	if err := verifyEntryCRC(raw, e.crc); err != nil {
		return nil, err
	}
	if !e.isEffectivelyCompressed() {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	var buf bytes.Buffer
	if err := inflateEntryInto(&buf, raw, e.size); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflateEntryInto zlib-inflates raw into dst, which may be a *bytes.Buffer
// or any other io.Writer a caller wants the decompressed bytes collected
// into (Archive.Deserialize hands it a pooled bytebufferpool.ByteBuffer).
func inflateEntryInto(dst io.Writer, raw []byte, declared uint32) error {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("katsuba: %w: zlib header: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	n, err := io.Copy(dst, zr)
	if err != nil {
		return fmt.Errorf("katsuba: %w: inflate: %v", ErrCorrupt, err)
	}
	if uint32(n) != declared {
		return fmt.Errorf("katsuba: %w: declared size %d, got %d", ErrCorrupt, declared, n)
	}
	return nil
}

// IsUnpatched reports whether the entry's on-disk bytes are all zero, a
// common signature of an un-patched placeholder asset.
func (a *Archive) IsUnpatched(path string) (bool, error) {
	idx, ok := a.byName[path]
	if !ok {
		return false, ErrNotInArchive
	}
	raw, err := a.rawBytes(a.entries[idx])
	if err != nil {
		return false, err
	}
	for _, b := range raw {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}

// Iter yields every path in journal order.
func (a *Archive) Iter() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range a.entries {
			if !yield(e.name) {
				return
			}
		}
	}
}

// IterGlob yields paths matching a UNIX-style glob pattern ('*', '?',
// '**' across '/', character classes). A leading "**/" also matches paths
// with no directory component; elsewhere in a pattern "**/" needs at least
// one '/' to match.
func (a *Archive) IterGlob(pattern string) (iter.Seq[string], error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("katsuba: %w: %v", ErrBadGlob, err)
	}
	var top glob.Glob
	if len(pattern) > 3 && pattern[:3] == "**/" {
		if top, err = glob.Compile(pattern[3:], '/'); err != nil {
			return nil, fmt.Errorf("katsuba: %w: %v", ErrBadGlob, err)
		}
	}
	return func(yield func(string) bool) {
		for _, e := range a.entries {
			if g.Match(e.name) || (top != nil && top.Match(e.name)) {
				if !yield(e.name) {
					return
				}
			}
		}
	}, nil
}

// Close releases the archive's memory mapping, if any. A heap-backed
// Archive has nothing to release.
func (a *Archive) Close() error {
	if a.mapping != nil {
		return a.mapping.Unmap()
	}
	return nil
}
