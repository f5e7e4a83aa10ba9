package invdx

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"unicode/utf8"
)

// TocEntry is one table-of-contents entry: a term and the location and
// shape of its posting region in the Main region.
type TocEntry struct {
	Term   string
	Df     uint32
	Offset uint64
	Nbytes uint64
}

// IndexFileReader does a single linear forward pass over one index file,
// exposing one table-of-contents entry at a time. This is never how an
// index is used for queries — it exists only to drive the k-way merge.
type IndexFileReader struct {
	mainFile     *os.File
	contentsFile *os.File
	main         *bufio.Reader
	contents     *bufio.Reader

	next *TocEntry
}

// OpenAndDeleteIndexFile opens path twice — one read head for the Main
// region, one for the Contents region — reads the first table-of-contents
// entry into the lookahead slot, then unlinks the directory entry. The
// file's data remains accessible through both open handles until the
// reader is closed.
func OpenAndDeleteIndexFile(path string) (*IndexFileReader, error) {
	mainFile, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open index file", err)
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(mainFile, hdr[:]); err != nil {
		mainFile.Close()
		return nil, ioErr("read index header", err)
	}
	contentsOffset := binary.LittleEndian.Uint64(hdr[:])

	contentsFile, err := os.Open(path)
	if err != nil {
		mainFile.Close()
		return nil, ioErr("open index file", err)
	}
	if _, err := contentsFile.Seek(int64(contentsOffset), io.SeekStart); err != nil {
		mainFile.Close()
		contentsFile.Close()
		return nil, ioErr("seek to index contents", err)
	}

	r := &IndexFileReader{
		mainFile:     mainFile,
		contentsFile: contentsFile,
		main:         bufio.NewReader(mainFile),
		contents:     bufio.NewReader(contentsFile),
	}

	first, err := readTocEntry(r.contents)
	if err != nil {
		mainFile.Close()
		contentsFile.Close()
		return nil, err
	}
	r.next = first

	if err := os.Remove(path); err != nil {
		mainFile.Close()
		contentsFile.Close()
		return nil, ioErr("unlink index file", err)
	}

	return r, nil
}

// Peek returns the preloaded next entry, or nil at end of stream.
func (r *IndexFileReader) Peek() *TocEntry { return r.next }

// IsAt reports whether the lookahead entry's term equals term exactly.
func (r *IndexFileReader) IsAt(term string) bool {
	return r.next != nil && r.next.Term == term
}

// MoveEntryTo copies the current entry's posting bytes unchanged to w's
// Main region, then advances the lookahead. It panics if called with no
// pending entry — the caller must check Peek/IsAt first.
func (r *IndexFileReader) MoveEntryTo(w *IndexFileWriter) error {
	if r.next == nil {
		panic("invdx: MoveEntryTo called with no pending entry")
	}

	if r.next.Nbytes > math.MaxInt {
		return &PlatformLimitError{Nbytes: r.next.Nbytes}
	}

	buf := make([]byte, r.next.Nbytes)
	if _, err := io.ReadFull(r.main, buf); err != nil {
		return ioErr("read index main region", err)
	}
	if err := w.WriteMain(buf); err != nil {
		return err
	}

	next, err := readTocEntry(r.contents)
	if err != nil {
		return err
	}
	r.next = next
	return nil
}

// Close releases both of the reader's open handles.
func (r *IndexFileReader) Close() error {
	err1 := r.mainFile.Close()
	err2 := r.contentsFile.Close()
	if err1 != nil {
		return ioErr("close index main handle", err1)
	}
	if err2 != nil {
		return ioErr("close index contents handle", err2)
	}
	return nil
}

// readTocEntry reads one table-of-contents entry from r. A true end of
// input before any bytes of the first field are read is a clean end of
// stream, reported as (nil, nil); anything else short of a full entry —
// a partial first field, any read failure on a later field, or a non-UTF-8
// term — is a hard CorruptIndexError, never silently swallowed as end of
// stream. A non-EOF read failure on the first field is an IoError.
func readTocEntry(r io.Reader) (*TocEntry, error) {
	var offBuf [8]byte
	_, err := io.ReadFull(r, offBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, &CorruptIndexError{Reason: "short read of toc offset", Err: err}
		}
		return nil, ioErr("read index toc offset", err)
	}
	offset := binary.LittleEndian.Uint64(offBuf[:])

	var nbytesBuf [8]byte
	if _, err := io.ReadFull(r, nbytesBuf[:]); err != nil {
		return nil, &CorruptIndexError{Reason: "short read of toc nbytes", Err: err}
	}
	nbytes := binary.LittleEndian.Uint64(nbytesBuf[:])

	var dfBuf [4]byte
	if _, err := io.ReadFull(r, dfBuf[:]); err != nil {
		return nil, &CorruptIndexError{Reason: "short read of toc df", Err: err}
	}
	df := binary.LittleEndian.Uint32(dfBuf[:])

	var termLenBuf [4]byte
	if _, err := io.ReadFull(r, termLenBuf[:]); err != nil {
		return nil, &CorruptIndexError{Reason: "short read of toc term_len", Err: err}
	}
	termLen := binary.LittleEndian.Uint32(termLenBuf[:])

	termBuf := make([]byte, termLen)
	if _, err := io.ReadFull(r, termBuf); err != nil {
		return nil, &CorruptIndexError{Reason: "short read of toc term bytes", Err: err}
	}
	if !utf8.Valid(termBuf) {
		return nil, &CorruptIndexError{Reason: "toc term is not valid utf-8"}
	}

	return &TocEntry{Term: string(termBuf), Df: df, Offset: offset, Nbytes: nbytes}, nil
}
