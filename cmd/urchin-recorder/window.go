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
	"strings"

	"github.com/TheCacophonyProject/window"

	"github.com/TheCacophonyProject/urchin-recorder/cycle"
	"github.com/TheCacophonyProject/urchin-recorder/location"
)

// newWindow returns when segments may be recorded. Start and end are either
// times of day or offsets from sunset and sunrise, which need the device
// location.
func newWindow(conf cycle.Config, loc *location.Location) (cycle.Window, error) {
	if conf.WindowStart == "" && conf.WindowEnd == "" {
		return cycle.AlwaysActive{}, nil
	}
	var lat, long float64
	if loc != nil && !loc.IsEmpty() {
		lat, long = float64(loc.Latitude), float64(loc.Longitude)
	} else if isRelative(conf.WindowStart) || isRelative(conf.WindowEnd) {
		return nil, errors.New("recording window is relative to sunset or sunrise but the device location is not set")
	}
	w, err := window.New(conf.WindowStart, conf.WindowEnd, lat, long)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func isRelative(t string) bool {
	return strings.HasPrefix(t, "+") || strings.HasPrefix(t, "-")
}
