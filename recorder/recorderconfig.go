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

package recorder

import (
	"errors"
	"time"
)

type Config struct {
	Command     string        `yaml:"command"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FrameRate   int           `yaml:"framerate"`
	Bitrate     int           `yaml:"bitrate"`
	ExtraArgs   []string      `yaml:"extra-args"`
	StopTimeout time.Duration `yaml:"stop-timeout"`
}

func DefaultConfig() Config {
	return Config{
		Command:     "libcamera-vid",
		Width:       1280,
		Height:      720,
		FrameRate:   30,
		Bitrate:     3000000,
		StopTimeout: 5 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.Command == "" {
		return errors.New("camera command must be set")
	}
	if conf.Width <= 0 || conf.Height <= 0 {
		return errors.New("camera width and height should be positive")
	}
	if conf.FrameRate <= 0 {
		return errors.New("camera framerate should be positive")
	}
	if conf.Bitrate <= 0 {
		return errors.New("camera bitrate should be positive")
	}
	return nil
}
