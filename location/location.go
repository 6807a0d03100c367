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

package location

import (
	"errors"

	goconfig "github.com/TheCacophonyProject/go-config"
)

const (
	maxLatitude  = 90
	maxLongitude = 180
)

// Location is where the device is deployed. It is only needed when the
// recording window is given relative to sunrise or sunset.
type Location struct {
	Latitude  float32
	Longitude float32
}

// Load reads the device location from the Cacophony config.
func Load(configRW *goconfig.Config) (*Location, error) {
	locationConfig := goconfig.DefaultWindowLocation()
	if err := configRW.Unmarshal(goconfig.LocationKey, &locationConfig); err != nil {
		return nil, err
	}
	loc := &Location{
		Latitude:  locationConfig.Latitude,
		Longitude: locationConfig.Longitude,
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

func (loc *Location) IsEmpty() bool {
	return loc.Latitude == 0 && loc.Longitude == 0
}

func (loc *Location) Validate() error {
	if loc.Latitude < -maxLatitude || loc.Latitude > maxLatitude {
		return errors.New("latitude outside of normal range")
	}
	if loc.Longitude < -maxLongitude || loc.Longitude > maxLongitude {
		return errors.New("longitude outside of normal range")
	}
	return nil
}
