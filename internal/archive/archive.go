// Package archive records raw SBS message lines to a size-rotating file so
// a session can be replayed or analysed later. Each record is the line
// prefixed with a UTC receipt timestamp and terminated with the same CRLF
// delimiter used on the wire.
package archive

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// terminator matches the SBS stream delimiter.
const terminator = "\r\n"

// Default rotation knobs used when a caller enables recording without
// tuning them.
const (
	DefaultMaxBytes = 8 << 20
	DefaultBackups  = 3
)

// Writer appends timestamped records to a file, rotating to numbered
// backups (file.1, file.2, ...) when the file would reach MaxBytes.
// Writes are best-effort: failures are logged, never returned, so a full
// disk cannot take down the ingest path.
type Writer struct {
	path     string
	maxBytes int64
	backups  int
	log      *logrus.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

// New opens path for appending and returns a Writer. Rotation requires both
// maxBytes > 0 and backups > 0; otherwise the file grows without bound.
func New(path string, maxBytes int64, backups int, log *logrus.Logger) (*Writer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat archive file: %w", err)
	}

	return &Writer{
		path:     path,
		maxBytes: maxBytes,
		backups:  backups,
		log:      log,
		file:     file,
		size:     info.Size(),
	}, nil
}

// Emit records line with the current time as its receipt timestamp.
func (w *Writer) Emit(line string) {
	w.EmitAt(time.Now(), line)
}

// EmitAt records line with an explicit receipt timestamp. Used when the
// line arrived earlier than it is being written, e.g. replaying envelopes
// off a message bus.
func (w *Writer) EmitAt(ts time.Time, line string) {
	record := ts.UTC().Format(time.RFC3339Nano) + "," + line + terminator

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		w.log.Warn("Attempted to write to a closed archive")
		return
	}

	// Rotation needs somewhere to rotate to. Without backups the cap is
	// ignored and the file keeps growing rather than being churned
	// through a pointless close and reopen on every write.
	if w.maxBytes > 0 && w.backups > 0 && w.size+int64(len(record)) >= w.maxBytes {
		if err := w.rotate(); err != nil {
			w.log.WithError(err).Error("Failed to rotate archive")
			return
		}
	}

	n, err := w.file.WriteString(record)
	w.size += int64(n)
	if err != nil {
		w.log.WithError(err).Error("Failed to write archive record")
	}
}

// rotate performs the rename chain path.N -> path.N+1 for the configured
// backup count and reopens an empty current file. Caller holds w.mu and
// has checked that backups > 0.
func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		w.log.WithError(err).Warn("Failed to close archive file before rotation")
	}
	w.file = nil

	for i := w.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Remove(dst)
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("failed to rename %s: %w", src, err)
			}
		}
	}
	dst := w.path + ".1"
	os.Remove(dst)
	if err := os.Rename(w.path, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", w.path, err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen archive file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat archive file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Close flushes and closes the current file. Closing a closed Writer is a
// no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Record is one archived line: the receipt timestamp text and the original
// wire line.
type Record struct {
	Timestamp string
	Line      string
}

// ReadArchive reads every record from an archive file, splitting each line
// on the first comma. It is the replay counterpart of Emit.
func ReadArchive(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}

	var records []Record
	for _, line := range strings.Split(string(data), terminator) {
		if line == "" {
			continue
		}
		ts, msg, found := strings.Cut(line, ",")
		if !found {
			return nil, fmt.Errorf("archive record without timestamp: %q", line)
		}
		records = append(records, Record{Timestamp: ts, Line: msg})
	}
	return records, nil
}
