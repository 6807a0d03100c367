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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Location{Latitude: -43.5321, Longitude: 172.6362}).Validate())
	assert.EqualError(t, (&Location{Latitude: 91}).Validate(), "latitude outside of normal range")
	assert.EqualError(t, (&Location{Longitude: -181}).Validate(), "longitude outside of normal range")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, (&Location{}).IsEmpty())
	assert.False(t, (&Location{Latitude: -43.5}).IsEmpty())
}
