package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/arnegrau/invdx"
)

var (
	flagSingleThreaded bool
	flagOutDir         string
	flagVerbose        bool
)

func main() {
	root := &cobra.Command{
		Use:   "indexer <path>...",
		Short: "Build an inverted index over a set of documents",
		Long: `indexer builds an on-disk inverted index over the documents named by its
arguments. A directory argument indexes every regular file directly inside
it (non-recursive); a file argument indexes that file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIndexer,
	}

	root.Flags().BoolVarP(&flagSingleThreaded, "single-threaded", "1", false, "build the index on a single goroutine instead of the pipelined builder")
	root.Flags().StringVar(&flagOutDir, "out", ".", "directory to write index.dat and intermediate files to")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func runIndexer(cmd *cobra.Command, args []string) error {
	log := newLogger()

	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return invdx.EmptyCorpusError{}
	}
	log.Debug().Int("documents", len(paths)).Msg("expanded input paths")

	progressCh := make(chan invdx.ProgressEvent, 8)
	done := make(chan struct{})
	go runProgressBar(len(paths), progressCh, done)

	opts := invdx.BuildOptions{
		SingleThreaded: flagSingleThreaded,
		OutputDir:      flagOutDir,
		Logger:         log,
		ProgressCh:     progressCh,
	}

	out, err := invdx.Build(paths, opts)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	log.Info().Str("path", out).Msg("index written")
	return nil
}

// expandPaths resolves the CLI's positional arguments into a flat list of
// file paths to index. A directory argument contributes every regular file
// directly inside it, without descending into subdirectories; a file
// argument contributes itself.
func expandPaths(args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if e.Type()&fs.ModeType != 0 {
				continue
			}
			paths = append(paths, filepath.Join(arg, e.Name()))
		}
	}

	return paths, nil
}

func runProgressBar(total int, ch <-chan invdx.ProgressEvent, done chan<- struct{}) {
	defer close(done)

	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("Indexing documents"),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	var lastDocs, lastFiles int
	for ev := range ch {
		if ev.DocumentsIndexed > lastDocs {
			bar.Set(ev.DocumentsIndexed)
			lastDocs = ev.DocumentsIndexed
		}
		if ev.FilesMerged > lastFiles {
			lastFiles = ev.FilesMerged
		}
	}
	bar.Finish()
}
