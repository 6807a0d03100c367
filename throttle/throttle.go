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

package throttle

import (
	"context"
	"log"
	"time"

	"github.com/juju/ratelimit"
)

func NewThrottler(config *ThrottlerConfig, listener ThrottledEventListener) *Throttler {
	return NewThrottlerWithClock(config, listener, new(realClock))
}

func NewThrottlerWithClock(
	config *ThrottlerConfig,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *Throttler {
	if listener == nil {
		listener = new(nullListener)
	}
	t := &Throttler{
		apply:    config.ApplyThrottling,
		listener: listener,
		sleep:    sleepContext,
	}
	if t.apply {
		// The bucket holds capture starts, refilled one per MinRefill.
		t.bucket = ratelimit.NewBucketWithClock(config.MinRefill, int64(config.BucketSize), clock)
	}
	return t
}

// Throttler limits how often the capture command is started. A working
// camera records for a whole segment so the bucket stays full, but a
// camera that fails straight away would otherwise be restarted in a
// tight loop.
type Throttler struct {
	apply    bool
	bucket   *ratelimit.Bucket
	listener ThrottledEventListener
	sleep    func(ctx context.Context, d time.Duration) error
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

// Wait blocks until a capture may be started. It returns early with the
// context's error if ctx is cancelled.
func (t *Throttler) Wait(ctx context.Context) error {
	if !t.apply {
		return ctx.Err()
	}
	d := t.bucket.Take(1)
	if d <= 0 {
		return ctx.Err()
	}
	log.Printf("capture throttled, waiting %v", d.Round(time.Second))
	t.listener.WhenThrottled()
	return t.sleep(ctx, d)
}

// Available returns the number of captures that can start without waiting.
func (t *Throttler) Available() int64 {
	if !t.apply {
		return -1
	}
	return t.bucket.Available()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
