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
	"errors"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"

	"github.com/TheCacophonyProject/urchin-recorder/janitor"
	"github.com/TheCacophonyProject/urchin-recorder/loglimiter"
	"github.com/TheCacophonyProject/urchin-recorder/recorder"
)

const (
	throttleEventType      = "throttle"
	recordingFailedType    = "videoRecordingFailed"
	usbMountFailedType     = "usbMountFailed"
	stuckProcessKilledType = "stuckProcessKilled"
)

func newEventReporter() *eventReporter {
	return &eventReporter{
		addEvent: eventclient.AddEvent,
		nowFunc:  time.Now,
		limiter:  loglimiter.New(10 * time.Minute),
	}
}

// eventReporter queues events with the event-reporter service so that
// they are uploaded with the device's other events.
type eventReporter struct {
	addEvent func(eventclient.Event) error
	nowFunc  func() time.Time
	limiter  *loglimiter.LogLimiter
}

func (r *eventReporter) WhenThrottled() {
	r.report(throttleEventType, map[string]interface{}{})
}

func (r *eventReporter) RecordingFailed(filename string, err error) {
	details := map[string]interface{}{
		"file":  filename,
		"error": err.Error(),
	}
	var captureErr *recorder.CaptureError
	if errors.As(err, &captureErr) {
		details["exitCode"] = captureErr.ExitCode
	}
	r.report(recordingFailedType, details)
}

func (r *eventReporter) USBMountFailed(err error) {
	r.report(usbMountFailedType, map[string]interface{}{
		"error": err.Error(),
	})
}

func (r *eventReporter) StuckProcessKilled(k janitor.Killed) {
	r.report(stuckProcessKilledType, map[string]interface{}{
		"name": k.Name,
		"pid":  k.Pid,
	})
}

func (r *eventReporter) report(eventType string, details map[string]interface{}) {
	err := r.addEvent(eventclient.Event{
		Timestamp: r.nowFunc(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		r.limiter.KeyPrint("event", "could not record "+eventType+" event: "+err.Error())
	}
}
