package invdx

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// headerSize is the fixed width of the region at the front of an index
// file that stores the byte offset of the Contents region.
const headerSize = 8

// IndexFileWriter serializes an in-memory index, or a merged stream, to a
// single on-disk file with a trailing table of contents: an 8-byte
// little-endian header holding the Contents offset, the Main region of
// concatenated postings, then the Contents entries (offset u64, nbytes u64,
// df u32, term_len u32, term bytes).
type IndexFileWriter struct {
	w      io.WriteSeeker
	offset uint64

	contents bytes.Buffer
}

// NewIndexFileWriter writes the eight-byte placeholder header and returns a
// writer ready to accept postings via WriteMain.
func NewIndexFileWriter(w io.WriteSeeker) (*IndexFileWriter, error) {
	var zero [headerSize]byte
	if _, err := w.Write(zero[:]); err != nil {
		return nil, ioErr("write index header placeholder", err)
	}
	return &IndexFileWriter{w: w, offset: headerSize}, nil
}

// Offset returns the number of bytes written to the file so far, header
// included, i.e. the byte offset the next WriteMain call will land at.
func (iw *IndexFileWriter) Offset() uint64 { return iw.offset }

// WriteMain appends raw bytes to the Main region. The caller must not
// replay a write.
func (iw *IndexFileWriter) WriteMain(buf []byte) error {
	n, err := iw.w.Write(buf)
	iw.offset += uint64(n)
	if err != nil {
		return ioErr("write index main region", err)
	}
	return nil
}

// WriteContentsEntry buffers one table-of-contents entry. offset must equal
// the writer's Offset() before this term's postings were written, and
// nbytes the total number of bytes written for them; neither is checked
// here.
func (iw *IndexFileWriter) WriteContentsEntry(term string, df uint32, offset, nbytes uint64) {
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], offset)
	iw.contents.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], nbytes)
	iw.contents.Write(u64[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], df)
	iw.contents.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(term)))
	iw.contents.Write(u32[:])

	iw.contents.WriteString(term)
}

// Finish writes the buffered Contents region, backpatches the header with
// its starting offset, and flushes. The writer must not be used again.
func (iw *IndexFileWriter) Finish() error {
	contentsStart := iw.offset

	if _, err := iw.contents.WriteTo(iw.w); err != nil {
		return ioErr("write index contents region", err)
	}

	if _, err := iw.w.Seek(0, io.SeekStart); err != nil {
		return ioErr("seek to index header", err)
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint64(hdr[:], contentsStart)
	if _, err := iw.w.Write(hdr[:]); err != nil {
		return ioErr("write index header", err)
	}

	if f, ok := iw.w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return ioErr("flush index file", err)
		}
	}

	return nil
}

// WriteIndexToTmpFile serializes index to a new temporary file created via
// tmp, with terms in ascending UTF-8 byte order as the on-disk format
// requires, and returns the file's path.
func WriteIndexToTmpFile(index *InMemoryIndex, tmp *TmpDir) (string, error) {
	f, path, err := tmp.Create()
	if err != nil {
		return "", err
	}
	defer f.Close()

	w, err := NewIndexFileWriter(f)
	if err != nil {
		return "", err
	}

	for _, term := range index.SortedTerms() {
		postings := index.Postings(term)
		start := w.Offset()
		for _, p := range postings {
			if err := w.WriteMain(p); err != nil {
				return "", err
			}
		}
		w.WriteContentsEntry(term, uint32(len(postings)), start, w.Offset()-start)
	}

	if err := w.Finish(); err != nil {
		return "", err
	}
	return path, nil
}
