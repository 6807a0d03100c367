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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheCacophonyProject/urchin-recorder/sessionlog"
	"github.com/TheCacophonyProject/urchin-recorder/storage"
)

const videoExt = ".h264"

// Recorder records one segment of video at a time.
type Recorder interface {
	CheckCanRecord(dir string) error
	NextFile(dir string) string
	Record(ctx context.Context, filename string, duration time.Duration) error
}

// CaptureError is returned when the capture command exits with a non-zero
// status or can't be started.
type CaptureError struct {
	Command  []string
	ExitCode int
	Err      error
}

func (e *CaptureError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("failed to run %s: %v", e.Command[0], e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command[0], e.ExitCode)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// CommandLine is the capture command as it would be typed in a shell.
func (e *CaptureError) CommandLine() string {
	return strings.Join(e.Command, " ")
}

func New(conf Config, minDiskSpace uint64) *CameraRecorder {
	return &CameraRecorder{
		conf:         conf,
		minDiskSpace: minDiskSpace,
		nowFunc:      time.Now,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
}

// CameraRecorder records video segments by running the camera capture
// command (libcamera-vid or rpicam-vid) for the length of the segment.
type CameraRecorder struct {
	conf         Config
	minDiskSpace uint64
	nowFunc      func() time.Time
	stdout       io.Writer
	stderr       io.Writer
}

// CheckCommand checks that the capture command can be found.
func (cr *CameraRecorder) CheckCommand() error {
	_, err := exec.LookPath(cr.conf.Command)
	return err
}

func (cr *CameraRecorder) CheckCanRecord(dir string) error {
	enoughSpace, err := storage.CheckDiskSpace(cr.minDiskSpace, dir)
	if err != nil {
		return fmt.Errorf("problem with checking disk space: %v", err)
	} else if !enoughSpace {
		return errors.New("not enough free disk space to start recording")
	}
	return nil
}

// NextFile returns a filename in dir for a recording starting now. A
// numeric suffix is added if a recording with the same timestamp exists.
func (cr *CameraRecorder) NextFile(dir string) string {
	base := filepath.Join(dir, "video_"+cr.nowFunc().Format(sessionlog.TimestampFormat))
	filename := base + videoExt
	for i := 1; exists(filename) || exists(filename+storage.TempExt); i++ {
		filename = base + "_" + strconv.Itoa(i) + videoExt
	}
	return filename
}

// Args returns the capture command arguments for a recording of the
// given duration written to output.
func (cr *CameraRecorder) Args(output string, duration time.Duration) []string {
	// A timeout of 0 makes the camera record until it is stopped.
	ms := duration.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	args := []string{
		"-t", strconv.FormatInt(ms, 10),
		"-o", output,
		"--width", strconv.Itoa(cr.conf.Width),
		"--height", strconv.Itoa(cr.conf.Height),
		"--framerate", strconv.Itoa(cr.conf.FrameRate),
		"--bitrate", strconv.Itoa(cr.conf.Bitrate),
		"--inline",
		"--nopreview",
	}
	return append(args, cr.conf.ExtraArgs...)
}

// Record runs the capture command until duration has elapsed. The video is
// written to a temp file which is renamed to filename once the command
// exits. If ctx is cancelled the command is interrupted so that it can
// finish the file, and killed if it doesn't exit within the stop timeout.
func (cr *CameraRecorder) Record(ctx context.Context, filename string, duration time.Duration) error {
	tempName := filename + storage.TempExt

	cmd := exec.CommandContext(ctx, cr.conf.Command, cr.Args(tempName, duration)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = cr.conf.StopTimeout
	cmd.Stdout = cr.stdout
	cmd.Stderr = cr.stderr

	runErr := cmd.Run()
	if err := finishTemp(tempName); err != nil {
		return err
	}

	if runErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &CaptureError{Command: cmd.Args, ExitCode: exitErr.ExitCode(), Err: runErr}
	}
	return &CaptureError{Command: cmd.Args, ExitCode: -1, Err: runErr}
}

// finishTemp keeps whatever was recorded, even from a failed capture.
func finishTemp(tempName string) error {
	info, err := os.Stat(tempName)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if info.Size() == 0 {
		return os.Remove(tempName)
	}
	_, err = storage.RenameTemp(tempName)
	return err
}

func exists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
