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
	"fmt"
	"log"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

type statusLED interface {
	Set(on bool)
}

type noLED struct{}

func (noLED) Set(bool) {}

type gpioLED struct {
	pin gpio.PinIO
}

// newLED returns the LED that is lit while a segment is being recorded.
// Without a pin name nothing is lit.
func newLED(pinName string) (statusLED, error) {
	if pinName == "" {
		return noLED{}, nil
	}

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("unable to load LED pin %s", pinName)
	}
	led := &gpioLED{pin: pin}
	led.Set(false)
	return led, nil
}

func (l *gpioLED) Set(on bool) {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := l.pin.Out(level); err != nil {
		log.Printf("failed to set LED pin %s: %v", l.pin, err)
	}
}
