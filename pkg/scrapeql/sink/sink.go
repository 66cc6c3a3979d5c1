// Package sink writes selected nodes to destinations for WRITE statements.
//
// The destination string chooses everything: "-" is standard output,
// s3://bucket/key is an object, and anything else is a file path. The
// extension picks the format (.html, .xml, .txt or .json) and an optional
// trailing .gz, .zst or .sz picks the compression.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sambeau/scrapeql/pkg/scrapeql/dom"
	"github.com/sambeau/scrapeql/pkg/scrapeql/logging"
	"github.com/sambeau/scrapeql/pkg/scrapeql/objstore"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

// Stdout is the destination for standard output.
const Stdout = "-"

// Config configures a Sink.
type Config struct {
	Level string // Compression level: "fastest", "default", "best", "none"
}

// ObjectPutter writes s3:// objects.
type ObjectPutter interface {
	Put(ctx context.Context, uri string, data []byte, contentType string) error
}

// Sink implements runner.Sink.
type Sink struct {
	cfg     Config
	stdout  io.Writer
	objects ObjectPutter
	logger  logging.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithStdout sets the writer used for "-".
func WithStdout(w io.Writer) Option { return func(s *Sink) { s.stdout = w } }

// WithObjectStore enables s3:// destinations.
func WithObjectStore(o ObjectPutter) Option { return func(s *Sink) { s.objects = o } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(s *Sink) { s.logger = l } }

// New creates a sink writing "-" to os.Stdout.
func New(cfg Config, opts ...Option) *Sink {
	s := &Sink{
		cfg:    cfg,
		stdout: os.Stdout,
		logger: logging.Null(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write serializes v to dest.
func (s *Sink) Write(ctx context.Context, v runner.Value, dest string) error {
	n, err := dom.AsNode(v)
	if err != nil {
		return err
	}
	if dest == "" {
		return errors.New("empty destination")
	}

	format, compression := Classify(dest)
	if dest == Stdout {
		format, compression = HTML, Uncompressed
	}

	data, err := Encode(n, format)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", format, err)
	}
	data, err = compress(data, compression, s.cfg.Level)
	if err != nil {
		return err
	}

	s.logger.Debug("writing", "destination", dest, "format", format.String(),
		"compression", compression.String(), "bytes", len(data))

	switch {
	case dest == Stdout:
		_, err := s.stdout.Write(data)
		return err
	case objstore.IsURI(dest):
		if s.objects == nil {
			return errors.New("s3 destinations are not configured")
		}
		contentType := format.contentType()
		if compression != Uncompressed {
			contentType = compression.contentType()
		}
		return s.objects.Put(ctx, dest, data, contentType)
	}
	return writeFile(dest, data)
}

func writeFile(dest string, data []byte) error {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	return os.WriteFile(dest, data, 0o644)
}
