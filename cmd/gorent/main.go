// Command gorent downloads a single-file torrent: it parses a metainfo
// file, announces to its tracker, and fetches pieces from peers it
// discovers until the file is complete.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/jrhouston/gorent/internal/coordinator"
	"github.com/jrhouston/gorent/internal/metainfo"
	"github.com/jrhouston/gorent/internal/progress"
)

type cli struct {
	Metainfo string `arg:"" name:"metainfo" help:"Path to the .torrent metainfo file." type:"existingfile"`
	Verbose  bool   `short:"v" name:"verbose" help:"Raise log verbosity and show a progress display." aliases:"display"`
	Output   string `short:"o" name:"output" help:"Output path for the reconstructed file (defaults to the metainfo's name)."`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("gorent"),
		kong.Description("A single-file BitTorrent downloader."),
	)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	if c.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	if err := run(c, entry); err != nil {
		entry.WithError(err).Error("download failed")
		os.Exit(1)
	}
}

func run(c cli, log *logrus.Entry) error {
	f, err := os.Open(c.Metainfo)
	if err != nil {
		return fmt.Errorf("opening metainfo file: %w", err)
	}
	meta, err := metainfo.Load(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("loading metainfo: %w", err)
	}

	outputPath := c.Output
	if outputPath == "" {
		outputPath = filepath.Clean(meta.OutputName)
	}

	log.WithFields(logrus.Fields{
		"name":   meta.OutputName,
		"pieces": meta.PieceCount(),
		"size":   progress.FormatBytes(meta.TotalSize),
	}).Info("loaded metainfo")

	coord, err := coordinator.New(meta, outputPath, log, c.Verbose)
	if err != nil {
		return fmt.Errorf("building coordinator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Interrupted before completion: exit cleanly without the
		// "downloaded" line.
		return nil
	}

	fmt.Printf("downloaded %s (%s)\n", outputPath, progress.FormatBytes(meta.TotalSize))
	return nil
}
