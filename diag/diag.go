// Package diag carries the diagnostic messages a connector emits while connecting.
//
// Connectors are handed a Sink instead of writing to a process-wide output.
// A Switch lets the caller send those messages to a log file for the duration
// of a connection attempt and guarantees they go back to the console afterwards.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrIOFailure - Writing to the diagnostic log failed.
var ErrIOFailure = errors.New("diagnostic log write failed")

// Sink - Receives diagnostic messages, in whatever argument shape they were emitted.
type Sink interface {
	Print(args ...interface{})
}

// ConsoleSink - Prints messages as space-separated values, one line each.
type ConsoleSink struct {
	mutex sync.Mutex
	out   io.Writer
}

// NewConsoleSink - Create a console sink writing to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Print - Print a message.
func (sink *ConsoleSink) Print(args ...interface{}) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	fmt.Fprintln(sink.out, args...)
}

// FileSink - Appends each message to a file as a JSON array line.
type FileSink struct {
	mutex sync.Mutex
	file  *os.File
	err   error
}

// OpenFileSink - Open the log file for appending, creating it and its parent directories if needed.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return &FileSink{file: file}, nil
}

// Print - Append a message. The first write error is kept and returned by Close.
func (sink *FileSink) Print(args ...interface{}) {
	line := EncodeLine(args)

	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.err != nil || sink.file == nil {
		return
	}
	if _, err := sink.file.Write(line); err != nil {
		sink.err = fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
}

// Close - Close the file. Later messages are dropped.
func (sink *FileSink) Close() error {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.file == nil {
		return sink.err
	}
	if err := sink.file.Close(); err != nil && sink.err == nil {
		sink.err = fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	sink.file = nil
	return sink.err
}

// EncodeLine - Encode message arguments as a JSON array followed by a newline.
// Errors are encoded as their message, values JSON can't encode as their %v text.
func EncodeLine(args []interface{}) []byte {
	values := make([]interface{}, len(args))
	for i, arg := range args {
		switch value := arg.(type) {
		case error:
			values[i] = value.Error()
		case fmt.Stringer:
			values[i] = value.String()
		default:
			if _, err := json.Marshal(value); err != nil {
				values[i] = fmt.Sprintf("%v", value)
			} else {
				values[i] = value
			}
		}
	}
	line, err := json.Marshal(values)
	if err != nil {
		line = []byte(`[]`)
	}
	return append(line, '\n')
}

// Switch - A Sink forwarding to the console, or to a log file while redirected.
type Switch struct {
	mutex   sync.RWMutex
	console Sink
	current Sink
}

// NewSwitch - Create a switch forwarding to the console sink.
func NewSwitch(console Sink) *Switch {
	return &Switch{console: console, current: console}
}

// Print - Forward a message to the current sink.
func (s *Switch) Print(args ...interface{}) {
	s.mutex.RLock()
	current := s.current
	s.mutex.RUnlock()
	current.Print(args...)
}

// Redirect - Send all messages to the log file at path while fn runs.
// The previous sink is restored when fn returns or panics.
// An error from fn takes precedence over an error writing the log.
func (s *Switch) Redirect(path string, fn func() error) (err error) {
	fileSink, err := OpenFileSink(path)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	previous := s.current
	s.current = fileSink
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.current = previous
		s.mutex.Unlock()
		if closeErr := fileSink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn()
}
