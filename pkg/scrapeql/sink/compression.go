package sink

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the compression applied to a destination, chosen by its
// final extension.
type Compression int

const (
	Uncompressed Compression = iota
	Gzip
	Zstd
	Snappy
)

var compressionSuffixes = map[string]Compression{
	".gz":  Gzip,
	".zst": Zstd,
	".sz":  Snappy,
}

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	}
	return "none"
}

// contentType is the MIME type of a compressed stream.
func (c Compression) contentType() string {
	switch c {
	case Gzip:
		return "application/gzip"
	case Zstd:
		return "application/zstd"
	case Snappy:
		return "application/x-snappy-framed"
	}
	return ""
}

// Levels accepted by Config.Level.
var Levels = []string{"fastest", "default", "best", "none"}

// ValidLevel reports whether level is one of Levels or empty.
func ValidLevel(level string) bool {
	if level == "" {
		return true
	}
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// gzipLevel maps a level name to a gzip compression level.
func gzipLevel(level string) int {
	switch level {
	case "fastest":
		return gzip.BestSpeed
	case "best":
		return gzip.BestCompression
	case "none":
		return gzip.NoCompression
	default:
		// Unknown level - use default
		return gzip.DefaultCompression
	}
}

// zstdLevel maps a level name to a zstd encoder level. zstd has no stored
// mode, so "none" is the fastest level.
func zstdLevel(level string) zstd.EncoderLevel {
	switch level {
	case "fastest", "none":
		return zstd.SpeedFastest
	case "best":
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// compress encodes data with c at the named level. Snappy ignores the level.
func compress(data []byte, c Compression, level string) ([]byte, error) {
	if c == Uncompressed {
		return data, nil
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case Gzip:
		gz, err := gzip.NewWriterLevel(&buf, gzipLevel(level))
		if err != nil {
			return nil, err
		}
		w = gz
	case Zstd:
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, err
		}
		w = enc
	case Snappy:
		w = snappy.NewBufferedWriter(&buf)
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return buf.Bytes(), nil
}

// splitCompression strips a compression suffix from dest.
func splitCompression(dest string) (string, Compression) {
	lower := strings.ToLower(dest)
	for suffix, c := range compressionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return dest[:len(dest)-len(suffix)], c
		}
	}
	return dest, Uncompressed
}
