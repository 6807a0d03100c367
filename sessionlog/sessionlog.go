// urchin-recorder - record timed video segments from a Raspberry Pi camera
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package sessionlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat is used for log line prefixes and recording filenames.
const TimestampFormat = "2006-01-02_15-04-05"

// New returns a Writer which echoes log lines to out. Lines are only
// written to disk once SetLogFile has been called.
func New(out io.Writer) *Writer {
	return &Writer{
		out:     out,
		nowFunc: time.Now,
	}
}

// Writer formats each line written to it as "[<timestamp>] <message>".
// It is intended to be installed with log.SetOutput so that everything
// logged with the standard logger also ends up in the session log file.
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	file    *os.File
	nowFunc func() time.Time
}

// SetLogFile starts appending lines to filename, creating its directory
// if required. Any previously opened log file is closed.
func (w *Writer) SetLogFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
	}
	w.file = f
	return nil
}

// LogFile returns the name of the file being appended to, or "" if
// there isn't one.
func (w *Writer) LogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp := w.nowFunc().Format(TimestampFormat)
	var buf bytes.Buffer
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "[%s] %s\n", stamp, line)
	}
	if buf.Len() == 0 {
		return len(p), nil
	}

	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	if w.file != nil {
		if _, err := w.file.Write(buf.Bytes()); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

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
