package invdx

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// NStreams is the merger's fan-in: the maximum number of index files
// combined in one k-way merge pass. It bounds the number of concurrently
// open file handles per merge and guarantees any file is merged at most
// O(log_NStreams N) times.
const NStreams = 8

// MergedFilename is the name FileMerge.Finish gives its sole surviving
// output file in the output directory.
const MergedFilename = "index.dat"

// FileMerge accepts an unbounded stream of index files and cascade-merges
// them, at fan-in NStreams, into a single final file using bounded memory:
// stacks[level] never holds NStreams or more files between calls to
// AddFile.
type FileMerge struct {
	outputDir string
	tmp       *TmpDir
	stacks    [][]string
	log       zerolog.Logger
}

// NewFileMerge returns a FileMerge that writes its intermediate and final
// output under outputDir, using tmp to generate intermediate filenames. log
// may be the zero value (zerolog.Logger{}), in which case no events are
// emitted.
func NewFileMerge(outputDir string, tmp *TmpDir, log zerolog.Logger) *FileMerge {
	return &FileMerge{outputDir: outputDir, tmp: tmp, log: log}
}

// AddFile adds file to the level-0 stack, cascading merges upward through
// as many levels as fill to capacity.
func (m *FileMerge) AddFile(file string) error {
	level := 0
	for {
		for level >= len(m.stacks) {
			m.stacks = append(m.stacks, nil)
		}
		m.stacks[level] = append(m.stacks[level], file)
		if len(m.stacks[level]) < NStreams {
			return nil
		}

		files := m.stacks[level]
		m.stacks[level] = nil

		m.log.Debug().Int("level", level).Int("files", len(files)).Msg("cascading merge")
		merged, err := m.mergeToTmp(files)
		if err != nil {
			return err
		}
		file = merged
		level++
	}
}

// Finish drains all residual files across all levels into a single output
// file, renamed to MergedFilename in the output directory. Returns
// EmptyCorpusError if no file was ever added.
func (m *FileMerge) Finish() (string, error) {
	var tmp []string

	for level := 0; level < len(m.stacks); level++ {
		files := m.stacks[level]
		for i := len(files) - 1; i >= 0; i-- {
			tmp = append(tmp, files[i])
			if len(tmp) == NStreams {
				merged, err := m.mergeReversed(tmp)
				if err != nil {
					return "", err
				}
				tmp = []string{merged}
			}
		}
	}

	if len(tmp) > 1 {
		merged, err := m.mergeReversed(tmp)
		if err != nil {
			return "", err
		}
		tmp = []string{merged}
	}

	if len(tmp) == 0 {
		return "", EmptyCorpusError{}
	}

	outPath := filepath.Join(m.outputDir, MergedFilename)
	if err := os.Rename(tmp[0], outPath); err != nil {
		return "", ioErr("rename merged index file", err)
	}
	return outPath, nil
}

// mergeReversed reverses filenames back to ascending level order, merges
// them into one new temporary file, and returns its path.
func (m *FileMerge) mergeReversed(filenames []string) (string, error) {
	reversed := make([]string, len(filenames))
	for i, f := range filenames {
		reversed[len(filenames)-1-i] = f
	}
	return m.mergeToTmp(reversed)
}

func (m *FileMerge) mergeToTmp(files []string) (string, error) {
	f, path, err := m.tmp.Create()
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := mergeStreams(files, f); err != nil {
		return "", err
	}
	return path, nil
}

// mergeStreams performs the k-way merge of files into out: for the
// lexicographically smallest term among all readers' lookaheads, it
// concatenates postings from every reader currently at that term (in
// reader-index order) and emits one combined table-of-contents entry.
func mergeStreams(files []string, out *os.File) error {
	readers := make([]*IndexFileReader, 0, len(files))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	count := 0
	for _, path := range files {
		r, err := OpenAndDeleteIndexFile(path)
		if err != nil {
			return err
		}
		readers = append(readers, r)
		if r.Peek() != nil {
			count++
		}
	}

	w, err := NewIndexFileWriter(out)
	if err != nil {
		return err
	}

	point := w.Offset()
	for count > 0 {
		term, found := minPendingTerm(readers)
		if !found {
			panic("invdx: merge loop found no pending entry while count > 0")
		}

		var nbytesTotal uint64
		var dfTotal uint32
		for _, r := range readers {
			if r.IsAt(term) {
				e := r.Peek()
				nbytesTotal += e.Nbytes
				dfTotal += e.Df
			}
		}

		for _, r := range readers {
			if r.IsAt(term) {
				if err := r.MoveEntryTo(w); err != nil {
					return err
				}
				if r.Peek() == nil {
					count--
				}
			}
		}

		w.WriteContentsEntry(term, dfTotal, point, nbytesTotal)
		point += nbytesTotal
	}

	return w.Finish()
}

// minPendingTerm returns the lexicographically smallest term among all
// readers with a non-empty lookahead.
func minPendingTerm(readers []*IndexFileReader) (string, bool) {
	var best string
	found := false
	for _, r := range readers {
		e := r.Peek()
		if e == nil {
			continue
		}
		if !found || e.Term < best {
			best = e.Term
			found = true
		}
	}
	return best, found
}
