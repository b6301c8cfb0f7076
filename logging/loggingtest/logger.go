// Package loggingtest provides a logger that allows tests to wait for
// expected log entries.
package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// ErrWaitTimeout is returned when a log entry was not received within
// the wait timeout.
var ErrWaitTimeout = errors.New("timeout")

type watch struct {
	exp   string
	count int
	found chan struct{}
}

// Logger stores the received log entries, and can be queried for
// entries received so far or expected to arrive within a timeout.
type Logger struct {
	mu      sync.Mutex
	closed  bool
	entries []string
	watches []*watch

	// Mute suppresses echoing the entries to the standard logger.
	Mute bool
}

// New returns an initialized test logger.
func New() *Logger {
	return &Logger{}
}

func (tl *Logger) save(e string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.closed {
		return
	}

	if !tl.Mute {
		log.Println(e)
	}

	tl.entries = append(tl.entries, e)
	for i := len(tl.watches) - 1; i >= 0; i-- {
		w := tl.watches[i]
		if strings.Contains(e, w.exp) {
			w.count--
			if w.count <= 0 {
				close(w.found)
				tl.watches = append(tl.watches[:i], tl.watches[i+1:]...)
			}
		}
	}
}

// WaitForN waits until the expected entry has been logged n times since
// the logger was created or last reset. Entries logged before the call
// count, too.
func (tl *Logger) WaitForN(exp string, n int, to time.Duration) error {
	tl.mu.Lock()
	for _, e := range tl.entries {
		if strings.Contains(e, exp) {
			n--
		}
	}

	if n <= 0 {
		tl.mu.Unlock()
		return nil
	}

	w := &watch{exp: exp, count: n, found: make(chan struct{})}
	tl.watches = append(tl.watches, w)
	tl.mu.Unlock()

	select {
	case <-w.found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

// WaitFor waits until the expected entry has been logged once.
func (tl *Logger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns how many stored entries contain the expression.
func (tl *Logger) Count(exp string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	var n int
	for _, e := range tl.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n
}

// Reset drops the stored entries and pending watches.
func (tl *Logger) Reset() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.entries = nil
	tl.watches = nil
}

// Close stops accepting new entries.
func (tl *Logger) Close() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.closed = true
}

func (tl *Logger) logf(f string, a ...interface{}) { tl.save(fmt.Sprintf(f, a...)) }
func (tl *Logger) log(a ...interface{})            { tl.save(fmt.Sprint(a...)) }

func (tl *Logger) Error(a ...interface{})            { tl.log(a...) }
func (tl *Logger) Errorf(f string, a ...interface{}) { tl.logf(f, a...) }
func (tl *Logger) Warn(a ...interface{})             { tl.log(a...) }
func (tl *Logger) Warnf(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *Logger) Info(a ...interface{})             { tl.log(a...) }
func (tl *Logger) Infof(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *Logger) Debug(a ...interface{})            { tl.log(a...) }
func (tl *Logger) Debugf(f string, a ...interface{}) { tl.logf(f, a...) }
