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

package loglimiter

import (
	"fmt"
	"log"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		seen:     make(map[string]time.Time),
	}
}

// LogLimiter suppresses a log message if a message with the same key was
// logged within the interval. Keys are tracked independently so that two
// alternating messages are both limited. Printf uses the format string as
// the key, so messages which only differ by their arguments are limited
// together.
type LogLimiter struct {
	interval time.Duration
	nowFunc  func() time.Time
	seen     map[string]time.Time
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.KeyPrint(format, fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.KeyPrint(s, s)
}

// KeyPrint logs s unless something was logged under key within the
// interval.
func (limiter *LogLimiter) KeyPrint(key, s string) {
	now := limiter.nowFunc()
	if prev, ok := limiter.seen[key]; ok && now.Sub(prev) < limiter.interval {
		return
	}

	log.Print(s)
	limiter.seen[key] = now
}

// Reset forgets key so the next message under it is always logged.
func (limiter *LogLimiter) Reset(key string) {
	delete(limiter.seen, key)
}
