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

package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/urchin-recorder/storage"
)

func newRecordingStatus(session *storage.Session, led statusLED, events *eventReporter) *recordingStatus {
	return &recordingStatus{
		session: session,
		led:     led,
		events:  events,
	}
}

// recordingStatus tracks what the recording loop is doing for the d-bus
// service, and drives the recording LED and failure events.
type recordingStatus struct {
	mu       sync.Mutex
	session  *storage.Session
	led      statusLED
	events   *eventReporter
	file     string
	started  time.Time
	failures int

	// restarts reports how many captures can start before the throttler
	// makes the loop wait. Nil when not known.
	restarts interface{ Available() int64 }
}

func (s *recordingStatus) RecordingStarted(filename string) {
	s.mu.Lock()
	s.file = filename
	s.started = time.Now()
	s.mu.Unlock()

	s.led.Set(true)
}

func (s *recordingStatus) RecordingStopped(filename string, err error) {
	s.led.Set(false)

	s.mu.Lock()
	s.file = ""
	s.started = time.Time{}
	failed := err != nil && !errors.Is(err, context.Canceled)
	if failed {
		s.failures++
	}
	s.mu.Unlock()

	if failed {
		s.events.RecordingFailed(filename, err)
		if s.restarts != nil {
			if n := s.restarts.Available(); n >= 0 {
				log.Printf("%d capture restarts left before throttling", n)
			}
		}
	}
}

// Status returns whether a segment is being recorded, the session folder
// and the file currently being written.
func (s *recordingStatus) Status() (bool, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != "", s.session.Dir, s.file
}

func (s *recordingStatus) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
