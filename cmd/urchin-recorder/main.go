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
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/urchin-recorder/cycle"
	"github.com/TheCacophonyProject/urchin-recorder/janitor"
	"github.com/TheCacophonyProject/urchin-recorder/recorder"
	"github.com/TheCacophonyProject/urchin-recorder/sessionlog"
	"github.com/TheCacophonyProject/urchin-recorder/storage"
	"github.com/TheCacophonyProject/urchin-recorder/throttle"
	"github.com/TheCacophonyProject/urchin-recorder/usbmount"
)

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	CacophonyDir string `arg:"--cacophony-config" help:"path to Cacophony configuration directory"`
	Single       bool   `arg:"-s,--single" help:"record one segment then exit"`
	NoUSB        bool   `arg:"--no-usb" help:"record to local storage without mounting USB"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/urchin-recorder.yaml"
	args.CacophonyDir = goconfig.DefaultConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	logWriter := sessionlog.New(os.Stdout)
	defer logWriter.Close()
	log.SetFlags(0) // sessionlog adds the timestamp
	log.SetOutput(logWriter)

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	if err := loadCacophonyConfig(args.CacophonyDir, conf); err != nil {
		return err
	}
	if args.NoUSB {
		conf.USB.Enabled = false
	}
	logConfig(conf)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	handleSignals(stop)

	events := newEventReporter()

	session, err := setupStorage(ctx, conf, usbmount.New(conf.USB), events)
	if err != nil {
		return err
	}
	if err := logWriter.SetLogFile(session.LogFile); err != nil {
		return err
	}
	log.Printf("session folder: %s, logging to %s", session.Dir, logWriter.LogFile())

	if _, err := storage.RecoverTempFiles(session.Dir); err != nil {
		log.Printf("failed to recover temp files: %v", err)
	}

	processJanitor := janitor.New(conf.Janitor.ProcessNames)
	killStuck(processJanitor, events)

	camera := recorder.New(conf.Camera, conf.Storage.MinDiskSpace)
	if err := camera.CheckCommand(); err != nil {
		return fmt.Errorf("camera command not available: %v", err)
	}

	recordingWindow, err := newWindow(conf.Recording, conf.Location)
	if err != nil {
		return err
	}

	led, err := newLED(conf.LEDs.Recording)
	if err != nil {
		return err
	}
	defer led.Set(false)

	status := newRecordingStatus(session, led, events)

	loop := cycle.New(camera, conf.Recording)
	loop.Window = recordingWindow
	throttler := throttle.NewThrottler(&conf.Throttler, events)
	status.restarts = throttler
	loop.Throttle = throttler
	loop.Listener = status
	if args.Single {
		loop.Segments = 1
	}

	log.Print("starting d-bus service")
	if err := startService(status, stop); err != nil {
		log.Printf("d-bus service not started: %v", err)
	}

	daemon.SdNotify(false, "READY=1")
	stopWatchdog := startWatchdog()
	defer stopWatchdog()

	recorded := loop.Run(ctx, session.Dir)
	log.Printf("%d segments recorded, %d failed", recorded, status.Failures())

	daemon.SdNotify(false, "STOPPING=1")
	killStuck(processJanitor, events)
	return nil
}

type mounter interface {
	Mount(ctx context.Context) (string, error)
}

// setupStorage mounts the USB drive when enabled and resolves the session
// folder. Having no removable drive at all is an error. If the drive is
// there but can't be mounted recordings go to local storage, unless
// fallback is disabled.
func setupStorage(ctx context.Context, conf *Config, m mounter, events *eventReporter) (*storage.Session, error) {
	mountPoint := ""
	if conf.USB.Enabled {
		mp, err := m.Mount(ctx)
		if err != nil {
			log.Printf("ERROR: USB storage not available: %v", err)
			events.USBMountFailed(err)
			if errors.Is(err, usbmount.ErrNoDevice) || !conf.USB.FallbackLocal {
				return nil, fmt.Errorf("USB storage not available: %w", err)
			}
		}
		mountPoint = mp
	}

	session, err := storage.Resolve(conf.Storage, mountPoint)
	if err != nil {
		return nil, err
	}
	if conf.USB.Enabled && !session.OnUSB {
		log.Print("[!] WARNING: USB not mounted, saving to local SD card.")
	}
	return session, nil
}

func killStuck(j *janitor.Janitor, events *eventReporter) {
	killed, err := j.KillStuck()
	if err != nil {
		log.Printf("ERROR: could not check for stuck camera processes: %v", err)
		return
	}
	for _, k := range killed {
		events.StuckProcessKilled(k)
	}
}

func handleSignals(stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigs {
			log.Print("[!] Received interrupt signal. Preparing to exit gracefully...")
			stop()
		}
	}()
}

// startWatchdog pings systemd at half the watchdog interval. Recording a
// segment blocks for many minutes so this can't be done from the loop.
func startWatchdog() func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval / 2)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				daemon.SdNotify(false, "WATCHDOG=1")
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
