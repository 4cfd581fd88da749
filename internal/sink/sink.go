// Package sink provides the durable append-only log writer behind the
// profiler's dump engine: create-if-absent, append at end of file, fsync
// before returning, and size-triggered rotation of the log file.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxBytes = 2 << 20 // 2 MiB
	DefaultKeep     = 3
)

// Config configures a FileSink.
type Config struct {
	// Path is the primary log file. Its directory is created best-effort.
	Path string

	// MaxBytes is the size past which the primary file is rotated
	// (default 2 MiB).
	MaxBytes int64

	// Keep is how many rotated files to retain; the file at suffix .Keep
	// is discarded on rotation (default 3).
	Keep int

	// Logger carries rotation diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// FileSink appends payloads to a single log file. The handle is not held
// open between appends; every Append performs its own open/write/sync/close
// so a crash never leaves buffered records behind.
type FileSink struct {
	path     string
	maxBytes int64
	keep     int
	log      zerolog.Logger
}

// New builds a FileSink, creating the log directory if it is missing.
// Directory creation is best-effort; a failure is logged and the first
// Append reports the real error.
func New(cfg Config) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("sink: path is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != string(filepath.Separator) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("log directory not created")
		}
	}
	return &FileSink{
		path:     cfg.Path,
		maxBytes: cfg.MaxBytes,
		keep:     cfg.Keep,
		log:      logger,
	}, nil
}

// Path returns the primary log file path.
func (s *FileSink) Path() string { return s.path }

// Append writes payload at end of file, creating the file if absent, and
// forces it to stable storage before returning. A successful append is
// followed by a best-effort rotation check. An empty payload is a no-op.
func (s *FileSink) Append(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", s.path, err)
	}
	if _, err := f.Write(payload); err != nil {
		return multierr.Append(fmt.Errorf("sink: write %s: %w", s.path, err), f.Close())
	}
	if err := f.Sync(); err != nil {
		return multierr.Append(fmt.Errorf("sink: sync %s: %w", s.path, err), f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sink: close %s: %w", s.path, err)
	}
	s.rotate()
	return nil
}

// rotate shifts path -> path.1 -> ... -> path.keep once the primary exceeds
// the threshold, discarding the file at the highest suffix, then recreates
// an empty primary. Renames run oldest to newest so nothing is clobbered
// before it has moved. Every failure is ignored; at worst the primary
// temporarily overshoots the threshold.
func (s *FileSink) rotate() {
	st, err := os.Stat(s.path)
	if err != nil || st.Size() <= s.maxBytes {
		return
	}
	_ = os.Remove(s.indexed(s.keep))
	for i := s.keep - 1; i >= 0; i-- {
		src := s.indexed(i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, s.indexed(i+1)); err != nil {
			s.log.Debug().Err(err).Str("file", src).Msg("rotate rename failed")
		}
	}
	if f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		_ = f.Close()
	}
	s.log.Debug().Str("file", s.path).Int64("size", st.Size()).Msg("log rotated")
}

// indexed maps rotation index to file name; index 0 is the unsuffixed
// primary.
func (s *FileSink) indexed(i int) string {
	if i == 0 {
		return s.path
	}
	return fmt.Sprintf("%s.%d", s.path, i)
}
