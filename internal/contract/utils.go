package contract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// NewLogger returns the process logger writing to stderr.
// Debug messages are enabled when verbose is set.
func NewLogger(verbose bool) zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	}).With().Timestamp().Logger()
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// WriteFileAtomic writes file through a uniquely named temporary file in the
// same directory and a rename, so readers only ever see the old or the
// complete new content, and concurrent writers of the same file never share
// a temporary file.
func WriteFileAtomic(file string, writeFn func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".*"+schema.TempSuffix)
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", file, err)
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := writeFn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, file); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory buffer.
func WriteBytesAtomic(file string, data []byte) error {
	return WriteFileAtomic(file, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// GetCacheDBFilePath returns the default SQLite file for the listing cache.
func GetCacheDBFilePath(outputDir string) string {
	return filepath.Join(outputDir, ".ktestci_cache.db")
}

// GetHistoryDBFilePath returns the default SQLite file for dispatch history.
func GetHistoryDBFilePath(outputDir string) string {
	return filepath.Join(outputDir, ".ktestci_history.db")
}

// SelectOutputFile returns the file handle for output, or os.Stdout when
// no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// TruncateString shortens s to maxWidth runes, marking the cut with "...".
func TruncateString(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return s
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
