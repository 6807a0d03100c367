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

// Package cycle runs the record, pause, repeat loop.
package cycle

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/TheCacophonyProject/urchin-recorder/loglimiter"
	"github.com/TheCacophonyProject/urchin-recorder/recorder"
)

// MinSegment is the shortest segment recorded. When less than this is
// left of the total recording time the loop finishes.
const MinSegment = time.Second

const outsideWindowFormat = "outside recording window, sleeping %v"

// Window decides whether recordings should be made now. It is satisfied
// by *window.Window.
type Window interface {
	Active() bool
	Until() time.Duration
}

// AlwaysActive is a Window with no night time.
type AlwaysActive struct{}

func (AlwaysActive) Active() bool         { return true }
func (AlwaysActive) Until() time.Duration { return 0 }

type Throttle interface {
	Wait(ctx context.Context) error
}

type noThrottle struct{}

func (noThrottle) Wait(ctx context.Context) error { return ctx.Err() }

type Listener interface {
	RecordingStarted(filename string)
	RecordingStopped(filename string, err error)
}

type nullListener struct{}

func (nullListener) RecordingStarted(string)        {}
func (nullListener) RecordingStopped(string, error) {}

type Config struct {
	Segment     time.Duration `yaml:"segment"`
	Pause       time.Duration `yaml:"pause"`
	Total       time.Duration `yaml:"total"`
	WindowStart string        `yaml:"window-start"`
	WindowEnd   string        `yaml:"window-end"`
}

func DefaultConfig() Config {
	return Config{
		Segment: 27 * time.Minute,
		Pause:   10 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.Segment < MinSegment {
		return errors.New("segment should be at least 1s")
	}
	if conf.Pause < 0 {
		return errors.New("pause can't be negative")
	}
	if conf.Total < 0 {
		return errors.New("total can't be negative")
	}
	if conf.WindowStart == "" && conf.WindowEnd != "" {
		return errors.New("window-end is set but window-start isn't")
	}
	if conf.WindowStart != "" && conf.WindowEnd == "" {
		return errors.New("window-start is set but window-end isn't")
	}
	return nil
}

func New(rec recorder.Recorder, conf Config) *Loop {
	return &Loop{
		Recorder: rec,
		Window:   AlwaysActive{},
		Throttle: noThrottle{},
		Listener: nullListener{},
		Segment:  conf.Segment,
		Pause:    conf.Pause,
		Total:    conf.Total,
		nowFunc:  time.Now,
		sleep:    sleepContext,
		limiter:  loglimiter.New(time.Hour),
	}
}

// Loop records segments one after another. Outside of the recording
// window it sleeps instead. It stops when its context is cancelled, after
// Total has elapsed or after Segments capture attempts.
type Loop struct {
	Recorder recorder.Recorder
	Window   Window
	Throttle Throttle
	Listener Listener
	Segment  time.Duration
	Pause    time.Duration
	Total    time.Duration
	Segments int

	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	limiter *loglimiter.LogLimiter
}

// Run records into dir and returns the number of segments recorded
// successfully.
func (l *Loop) Run(ctx context.Context, dir string) int {
	start := l.nowFunc()
	attempts := 0
	recorded := 0
	for {
		if ctx.Err() != nil {
			log.Print("stopping recording loop")
			return recorded
		}
		if l.Segments > 0 && attempts >= l.Segments {
			return recorded
		}

		length := l.Segment
		if l.Total > 0 {
			left := l.Total - l.nowFunc().Sub(start)
			if left < MinSegment {
				log.Printf("finished recording after %v", l.Total)
				return recorded
			}
			length = minDuration(length, left)
		}

		if !l.Window.Active() {
			wait := length
			if until := l.Window.Until(); until > 0 {
				wait = minDuration(wait, until)
			}
			l.limiter.Printf(outsideWindowFormat, wait)
			l.sleep(ctx, wait)
			continue
		}
		l.limiter.Reset(outsideWindowFormat)

		if err := l.Throttle.Wait(ctx); err != nil {
			continue
		}
		if err := l.Recorder.CheckCanRecord(dir); err != nil {
			l.limiter.Printf("ERROR: %v", err)
			if l.Segments > 0 {
				// A skipped segment still uses up one of the cycles.
				attempts++
				if attempts >= l.Segments {
					return recorded
				}
			}
			l.sleep(ctx, length)
			continue
		}

		filename := l.Recorder.NextFile(dir)
		log.Printf("Recording for %d seconds → %s", int(length.Seconds()), filename)
		l.Listener.RecordingStarted(filename)
		err := l.Recorder.Record(ctx, filename, length)
		l.Listener.RecordingStopped(filename, err)
		attempts++

		switch {
		case err == nil:
			recorded++
			log.Print("Video recorded.")
		case ctx.Err() != nil:
			log.Printf("recording interrupted: %s", filename)
		default:
			logRecordError(err)
		}

		l.sleep(ctx, l.Pause)
	}
}

func logRecordError(err error) {
	log.Print("ERROR: Failed to record video.")
	var captureErr *recorder.CaptureError
	if errors.As(err, &captureErr) {
		log.Printf("Command: %s", captureErr.CommandLine())
		log.Printf("Exit code: %d", captureErr.ExitCode)
		return
	}
	log.Printf("ERROR: %v", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
