package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger records the bytes that cross the controller link.
type RawLogger interface {
	// Log records data; in is true for bytes received from the peer.
	Log(in bool, data []byte)
}

type rawLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewRaw creates a RawLogger writing to w. A nil w yields a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w, now: time.Now}
}

// Log emits one line per chunk with a timestamp, direction and hex dump.
func (r *rawLogger) Log(in bool, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	dir := "TX"
	if in {
		dir = "RX"
	}
	line := fmt.Sprintf("%s %s %d bytes: % x\n",
		r.now().Format("15:04:05.000"),
		dir,
		len(data),
		data)

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}
