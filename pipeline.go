package invdx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// ProgressEvent reports incremental progress from a build to an optional
// caller-supplied channel. It is an ambient, CLI-facing concern — the core
// build functions work identically with a nil channel.
type ProgressEvent struct {
	// DocumentsIndexed is the number of documents tokenized and merged
	// into the accumulator so far.
	DocumentsIndexed int

	// FilesMerged is the number of intermediate files handed to the file
	// merger so far.
	FilesMerged int
}

// BuildOptions configures a build. The zero value is a usable default:
// pipelined mode, output to the current directory, no logging, no
// progress reporting.
type BuildOptions struct {
	SingleThreaded bool
	OutputDir      string
	Logger         zerolog.Logger
	ProgressCh     chan<- ProgressEvent
}

func (o BuildOptions) outputDir() string {
	if o.OutputDir == "" {
		return "."
	}
	return o.OutputDir
}

func (o BuildOptions) reportProgress(ev ProgressEvent) {
	if o.ProgressCh != nil {
		o.ProgressCh <- ev
	}
}

// Build indexes the documents named by paths (already expanded from any
// directory arguments by the caller) and writes the final index.dat to
// opts.OutputDir, returning its path.
func Build(paths []string, opts BuildOptions) (string, error) {
	if opts.SingleThreaded {
		return buildSingleThreaded(paths, opts)
	}
	return buildPipelined(paths, opts)
}

// buildSingleThreaded implements spec §4.5's single-threaded mode: read,
// tokenize, and merge each document in order on one goroutine, flushing the
// accumulator to a temporary file and into the cascade whenever it grows
// large, then finishing the cascade.
func buildSingleThreaded(paths []string, opts BuildOptions) (string, error) {
	log := opts.Logger
	log.Debug().Int("documents", len(paths)).Msg("single-threaded build starting")

	outDir := opts.outputDir()
	tmp := NewTmpDir(outDir)
	merge := NewFileMerge(outDir, tmp, log)

	acc := NewInMemoryIndex()
	var filesMerged int

	for docID, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			wrapped := ioErr("read document "+path, err)
			log.Error().Err(wrapped).Msg("single-threaded build failed reading a document")
			return "", wrapped
		}

		doc := IndexSingleDocument(uint32(docID), string(text))
		acc.Merge(doc)

		if acc.IsLarge() {
			log.Debug().Uint64("wordCount", acc.WordCount()).Msg("flushing large accumulator")
			file, err := WriteIndexToTmpFile(acc, tmp)
			if err != nil {
				log.Error().Err(err).Msg("single-threaded build failed writing a flush file")
				return "", err
			}
			if err := merge.AddFile(file); err != nil {
				log.Error().Err(err).Msg("single-threaded build failed adding a flush file to the merge")
				return "", err
			}
			filesMerged++
			opts.reportProgress(ProgressEvent{DocumentsIndexed: docID + 1, FilesMerged: filesMerged})
			acc = NewInMemoryIndex()
		}
	}

	if !acc.IsEmpty() {
		file, err := WriteIndexToTmpFile(acc, tmp)
		if err != nil {
			log.Error().Err(err).Msg("single-threaded build failed writing the final flush file")
			return "", err
		}
		if err := merge.AddFile(file); err != nil {
			log.Error().Err(err).Msg("single-threaded build failed adding the final flush file to the merge")
			return "", err
		}
		filesMerged++
	}

	opts.reportProgress(ProgressEvent{DocumentsIndexed: len(paths), FilesMerged: filesMerged})

	out, err := merge.Finish()
	if err != nil {
		log.Error().Err(err).Msg("single-threaded build failed finishing the merge")
		return "", err
	}
	log.Debug().Str("path", out).Msg("single-threaded build finished")
	return out, nil
}

// docText is the unit of work handed from the reader stage to the indexer
// stage of the pipeline.
type docText struct {
	path string
	text string
}

// buildPipelined implements spec §4.5's five-stage pipeline: reader,
// indexer, in-memory merger, writer, and file merger, each its own
// goroutine connected by small buffered channels. A shared context cancels
// the pipeline when a fallible stage errors, so upstream producers unblock
// from a send that will never be received instead of deadlocking.
func buildPipelined(paths []string, opts BuildOptions) (string, error) {
	const queueDepth = 2

	outDir := opts.outputDir()
	log := opts.Logger
	log.Debug().Int("documents", len(paths)).Msg("pipelined build starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	textCh := make(chan docText, queueDepth)
	indexCh := make(chan *InMemoryIndex, queueDepth)
	flushCh := make(chan *InMemoryIndex, queueDepth)
	fileCh := make(chan string, queueDepth)

	var readerErr, writerErr, mergeErr error

	var wg sync.WaitGroup
	wg.Add(4)

	// Stage 1: reader.
	go func() {
		log.Debug().Msg("reader stage starting")
		defer log.Debug().Msg("reader stage stopped")
		defer wg.Done()
		defer close(textCh)

		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				readerErr = ioErr("read document "+p, err)
				cancel()
				return
			}
			select {
			case textCh <- docText{path: p, text: string(data)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 2: indexer. Infallible: assigns document ids strictly in
	// receive order, which establishes the monotonic-doc-id property the
	// downstream merges rely on for Invariant B.
	go func() {
		log.Debug().Msg("indexer stage starting")
		defer log.Debug().Msg("indexer stage stopped")
		defer wg.Done()
		defer close(indexCh)

		var docID uint32
		for t := range textCh {
			idx := IndexSingleDocument(docID, t.text)
			docID++

			select {
			case indexCh <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 3: in-memory merger. Infallible.
	go func() {
		log.Debug().Msg("in-memory merger stage starting")
		defer log.Debug().Msg("in-memory merger stage stopped")
		defer wg.Done()
		defer close(flushCh)

		acc := NewInMemoryIndex()
		var docsSeen int
		for idx := range indexCh {
			acc.Merge(idx)
			docsSeen++
			if acc.IsLarge() {
				log.Debug().Uint64("wordCount", acc.WordCount()).Msg("flushing large accumulator")
				select {
				case flushCh <- acc:
				case <-ctx.Done():
					return
				}
				acc = NewInMemoryIndex()
			}
			opts.reportProgress(ProgressEvent{DocumentsIndexed: docsSeen})
		}
		if !acc.IsEmpty() {
			log.Debug().Uint64("wordCount", acc.WordCount()).Msg("flushing final accumulator")
			select {
			case flushCh <- acc:
			case <-ctx.Done():
			}
		}
	}()

	// Stage 4: writer.
	go func() {
		log.Debug().Msg("writer stage starting")
		defer log.Debug().Msg("writer stage stopped")
		defer wg.Done()
		defer close(fileCh)

		tmp := NewTmpDir(outDir)
		for acc := range flushCh {
			path, err := WriteIndexToTmpFile(acc, tmp)
			if err != nil {
				writerErr = err
				cancel()
				return
			}
			select {
			case fileCh <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 5: file merger. Reports through a completion channel rather
	// than the WaitGroup, since its result (the final path) is the
	// function's return value.
	type mergeResult struct {
		path string
		err  error
	}
	mergeDone := make(chan mergeResult, 1)
	go func() {
		log.Debug().Msg("file merger stage starting")
		defer log.Debug().Msg("file merger stage stopped")

		tmp := NewTmpDir(outDir)
		merge := NewFileMerge(outDir, tmp, log)

		var filesMerged int
		for path := range fileCh {
			if err := merge.AddFile(path); err != nil {
				mergeErr = err
				cancel()
				for range fileCh {
					// drain so stage 4 can exit
				}
				mergeDone <- mergeResult{err: err}
				return
			}
			filesMerged++
			opts.reportProgress(ProgressEvent{FilesMerged: filesMerged})
		}

		final, err := merge.Finish()
		mergeDone <- mergeResult{path: final, err: err}
	}()

	wg.Wait()
	result := <-mergeDone

	if readerErr != nil {
		log.Error().Err(readerErr).Msg("pipelined build failed in the reader stage")
		return "", readerErr
	}
	if writerErr != nil {
		log.Error().Err(writerErr).Msg("pipelined build failed in the writer stage")
		return "", writerErr
	}
	if result.err != nil {
		mergeErr = result.err
	}
	if mergeErr != nil {
		log.Error().Err(mergeErr).Msg("pipelined build failed in the file merger stage")
		return "", mergeErr
	}
	log.Debug().Str("path", result.path).Msg("pipelined build finished")
	return result.path, nil
}
