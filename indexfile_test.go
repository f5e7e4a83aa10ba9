package invdx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// readAllTocEntries walks the Contents region of the file at path using
// plain file I/O (not IndexFileReader, so these assertions don't depend on
// the thing they're verifying).
func readAllTocEntries(t *testing.T, path string) []TocEntry {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), headerSize)

	contentsStart := binary.LittleEndian.Uint64(data[:headerSize])
	require.LessOrEqual(t, contentsStart, uint64(len(data)))

	var entries []TocEntry
	off := contentsStart
	for off < uint64(len(data)) {
		offset := binary.LittleEndian.Uint64(data[off : off+8])
		nbytes := binary.LittleEndian.Uint64(data[off+8 : off+16])
		df := binary.LittleEndian.Uint32(data[off+16 : off+20])
		termLen := binary.LittleEndian.Uint32(data[off+20 : off+24])
		off += 24
		term := string(data[off : off+uint64(termLen)])
		off += uint64(termLen)

		entries = append(entries, TocEntry{Term: term, Df: df, Offset: offset, Nbytes: nbytes})
	}
	return entries
}

func TestIndexFileTocIsLexicographicallyOrdered(t *testing.T) {
	dir := t.TempDir()
	tmp := NewTmpDir(dir)

	idx := IndexSingleDocument(0, "The quick brown fox")
	path, err := WriteIndexToTmpFile(idx, tmp)
	require.NoError(t, err)

	entries := readAllTocEntries(t, path)
	require.Len(t, entries, 4)

	terms := make([]string, len(entries))
	for i, e := range entries {
		terms[i] = e.Term
	}
	require.Equal(t, []string{"brown", "fox", "quick", "the"}, terms)

	for _, e := range entries {
		require.EqualValues(t, 1, e.Df)
		require.EqualValues(t, 8, e.Nbytes) // 4 bytes doc id + 4 bytes one position
	}
}

func TestIndexFileMainIsContiguous(t *testing.T) {
	dir := t.TempDir()
	tmp := NewTmpDir(dir)

	idx := NewInMemoryIndex()
	idx.Merge(IndexSingleDocument(0, "alpha beta gamma delta"))
	path, err := WriteIndexToTmpFile(idx, tmp)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := binary.LittleEndian.Uint64(data[:headerSize])

	entries := readAllTocEntries(t, path)
	require.NotEmpty(t, entries)
	require.EqualValues(t, headerSize, entries[0].Offset)

	for i := 1; i < len(entries); i++ {
		require.Equal(t, entries[i-1].Offset+entries[i-1].Nbytes, entries[i].Offset)
	}
	last := entries[len(entries)-1]
	require.Equal(t, header, last.Offset+last.Nbytes)
}

func TestIndexFileReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tmp := NewTmpDir(dir)

	text := "The quick brown fox jumps over the lazy dog"
	idx := IndexSingleDocument(42, text)
	path, err := WriteIndexToTmpFile(idx, tmp)
	require.NoError(t, err)

	r, err := OpenAndDeleteIndexFile(path)
	require.NoError(t, err)
	defer r.Close()

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "file should be unlinked once opened")

	outPath := filepath.Join(dir, "roundtrip.dat")
	outFile, err := os.Create(outPath)
	require.NoError(t, err)
	w, err := NewIndexFileWriter(outFile)
	require.NoError(t, err)

	seen := map[string]bool{}
	starts := map[string]uint64{}
	for r.Peek() != nil {
		term := r.Peek().Term
		offsetBefore := w.Offset()
		require.NoError(t, r.MoveEntryTo(w))
		require.False(t, seen[term], "term %q seen twice", term)
		seen[term] = true
		starts[term] = offsetBefore
	}
	require.NoError(t, w.Finish())
	outFile.Close()

	// The moved bytes are exactly one posting for this single-document
	// index: docID then positions in text order.
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	for term, start := range starts {
		want := []byte(idx.Postings(term)[0])
		require.Equal(t, want, data[start:start+uint64(len(want))], "posting bytes for %q", term)
	}

	for _, term := range idx.SortedTerms() {
		require.True(t, seen[term], "round trip dropped term %q", term)
	}
	require.Len(t, seen, len(idx.SortedTerms()))
}

func TestIndexFileReaderIsAtAndPeek(t *testing.T) {
	dir := t.TempDir()
	tmp := NewTmpDir(dir)

	idx := IndexSingleDocument(0, "apple banana cherry")
	path, err := WriteIndexToTmpFile(idx, tmp)
	require.NoError(t, err)

	r, err := OpenAndDeleteIndexFile(path)
	require.NoError(t, err)
	defer r.Close()

	require.NotNil(t, r.Peek())
	require.Equal(t, "apple", r.Peek().Term)
	require.True(t, r.IsAt("apple"))
	require.False(t, r.IsAt("banana"))
}

func TestMoveEntryToWithNoPendingEntryPanics(t *testing.T) {
	dir := t.TempDir()
	tmp := NewTmpDir(dir)

	idx := IndexSingleDocument(0, "solo")
	path, err := WriteIndexToTmpFile(idx, tmp)
	require.NoError(t, err)

	r, err := OpenAndDeleteIndexFile(path)
	require.NoError(t, err)
	defer r.Close()

	outFile, err := os.Create(filepath.Join(dir, "out.dat"))
	require.NoError(t, err)
	defer outFile.Close()
	w, err := NewIndexFileWriter(outFile)
	require.NoError(t, err)

	require.NoError(t, r.MoveEntryTo(w)) // consumes the only entry
	require.Nil(t, r.Peek())

	require.Panics(t, func() {
		_ = r.MoveEntryTo(w)
	})
}

func TestReadTocEntryRejectsNonUTF8Term(t *testing.T) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, 8)                  // offset
	buf = binary.LittleEndian.AppendUint64(buf, 4)                  // nbytes
	buf = binary.LittleEndian.AppendUint32(buf, 1)                  // df
	buf = binary.LittleEndian.AppendUint32(buf, 2)                  // term_len
	buf = append(buf, 0xff, 0xfe)                                   // invalid utf-8

	_, err := readTocEntry(bytes.NewReader(buf))
	require.Error(t, err)
	var corrupt *CorruptIndexError
	require.ErrorAs(t, err, &corrupt)
}

func TestReadTocEntryCleanEOF(t *testing.T) {
	entry, err := readTocEntry(bytes.NewReader(nil))
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestReadTocEntryPartialFirstFieldIsCorrupt(t *testing.T) {
	// Three bytes is a nonzero, incomplete read of the 8-byte offset field:
	// this must never be mistaken for a clean end of stream.
	_, err := readTocEntry(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
	var corrupt *CorruptIndexError
	require.ErrorAs(t, err, &corrupt)
}

type erroringReader struct{ err error }

func (r erroringReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadTocEntryPropagatesNonEOFErrorOnFirstField(t *testing.T) {
	// A genuine I/O error that happens to return zero bytes (e.g. a closed
	// or broken handle) must be propagated, not swallowed as end of stream.
	boom := errors.New("boom")
	_, err := readTocEntry(erroringReader{err: boom})
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
	var ioe *IoError
	require.ErrorAs(t, err, &ioe)
}
