package logger

import (
	"io"
	"log"
	"os"
	"sync"
)

// FileLogger is a StandardLogger that owns its output and closes it.
type FileLogger struct {
	*StandardLogger
	w    io.Closer
	once sync.Once
	err  error
}

// NewFileLogger appends log lines to the file at path, creating it if needed.
func NewFileLogger(path string, debug bool) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return newFileLogger(f, debug), nil
}

func newFileLogger(w io.WriteCloser, debug bool) *FileLogger {
	return &FileLogger{
		StandardLogger: NewStandardLogger(log.New(w, "", log.LstdFlags), debug),
		w:              w,
	}
}

// Close closes the underlying file. Later calls return the first result.
func (f *FileLogger) Close() error {
	f.once.Do(func() {
		f.err = f.w.Close()
	})
	return f.err
}

var _ Logger = (*FileLogger)(nil)
