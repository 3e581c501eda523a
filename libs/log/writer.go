package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func makeWriter(format string) (io.Writer, error) {
	switch format {
	case LogFormatPlain, LogFormatText:
		return zerolog.ConsoleWriter{
			Out:        NewSyncWriter(os.Stderr),
			NoColor:    format == LogFormatText,
			TimeFormat: time.RFC3339,
		}, nil

	case LogFormatJSON:
		return NewSyncWriter(os.Stderr), nil

	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// NewSyncWriter returns a new writer that is safe for concurrent use by
// multiple goroutines. Writes to the returned writer are passed on to w. If
// another write is already in progress, the calling goroutine blocks until the
// writer is available.
func NewSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

type syncWriter struct {
	mtx sync.Mutex
	w   io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mtx.Lock()
	defer sw.mtx.Unlock()
	return sw.w.Write(p)
}
