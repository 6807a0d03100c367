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
	"io/ioutil"
	"log"
	"os"

	goconfig "github.com/TheCacophonyProject/go-config"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/urchin-recorder/cycle"
	"github.com/TheCacophonyProject/urchin-recorder/location"
	"github.com/TheCacophonyProject/urchin-recorder/recorder"
	"github.com/TheCacophonyProject/urchin-recorder/storage"
	"github.com/TheCacophonyProject/urchin-recorder/throttle"
	"github.com/TheCacophonyProject/urchin-recorder/usbmount"
)

type Config struct {
	DeviceID   int                      `yaml:"-"`
	DeviceName string                   `yaml:"-"`
	Location   *location.Location       `yaml:"-"`
	Camera     recorder.Config          `yaml:"camera"`
	Recording  cycle.Config             `yaml:"recording"`
	Storage    storage.Config           `yaml:"storage"`
	USB        usbmount.Config          `yaml:"usb"`
	Janitor    JanitorConfig            `yaml:"janitor"`
	Throttler  throttle.ThrottlerConfig `yaml:"throttler"`
	LEDs       LEDsConfig               `yaml:"leds"`
}

type JanitorConfig struct {
	ProcessNames []string `yaml:"process-names"`
}

type LEDsConfig struct {
	Recording string `yaml:"recording"`
}

func (conf *Config) Validate() error {
	if err := conf.Camera.Validate(); err != nil {
		return err
	}
	if err := conf.Recording.Validate(); err != nil {
		return err
	}
	if err := conf.Storage.Validate(); err != nil {
		return err
	}
	if err := conf.USB.Validate(); err != nil {
		return err
	}
	if err := conf.Throttler.Validate(); err != nil {
		return err
	}
	if len(conf.Janitor.ProcessNames) == 0 {
		return errors.New("janitor process-names can't be empty")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Camera:    recorder.DefaultConfig(),
		Recording: cycle.DefaultConfig(),
		Storage:   storage.DefaultConfig(),
		USB:       usbmount.DefaultConfig(),
		Janitor: JanitorConfig{
			ProcessNames: []string{"libcamera-vid", "rpicam-vid"},
		},
		Throttler: throttle.DefaultThrottlerConfig(),
	}
}

// ParseConfigFile reads the recorder configuration. A missing file means
// all defaults are used.
func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		log.Printf("%s not found, using default configuration", filename)
	} else if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig()
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// loadCacophonyConfig adds the device identity and location from the
// Cacophony config directory when there is one.
func loadCacophonyConfig(dir string, conf *Config) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	configRW, err := goconfig.New(dir)
	if err != nil {
		return err
	}

	var deviceConfig goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &deviceConfig); err != nil {
		return err
	}
	conf.DeviceID = deviceConfig.ID
	conf.DeviceName = deviceConfig.Name

	loc, err := location.Load(configRW)
	if err != nil {
		return err
	}
	conf.Location = loc
	return nil
}

func logConfig(conf *Config) {
	if conf.DeviceName != "" {
		log.Printf("device name: %s (%d)", conf.DeviceName, conf.DeviceID)
	}
	log.Printf("camera: %s %dx%d@%dfps %d bps",
		conf.Camera.Command, conf.Camera.Width, conf.Camera.Height,
		conf.Camera.FrameRate, conf.Camera.Bitrate)
	log.Printf("segment length: %v, pause: %v", conf.Recording.Segment, conf.Recording.Pause)
	if conf.Recording.Total > 0 {
		log.Printf("total recording time: %v", conf.Recording.Total)
	}
	if conf.Recording.WindowStart != "" {
		log.Printf("recording window: %s to %s", conf.Recording.WindowStart, conf.Recording.WindowEnd)
	}
	if conf.USB.Enabled {
		log.Printf("usb mount point: %s (fallback to local: %v)", conf.USB.MountPoint, conf.USB.FallbackLocal)
	}
	log.Printf("local dir: %s", conf.Storage.LocalDir)
	log.Printf("minimum disk space: %dMB", conf.Storage.MinDiskSpace)
	log.Printf("throttler: %+v", conf.Throttler)
	if conf.LEDs.Recording != "" {
		log.Printf("recording LED: %s", conf.LEDs.Recording)
	}
}
