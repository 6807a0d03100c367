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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeCameraScript = `#!/bin/sh
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
`

func writeFakeCamera(t *testing.T, body string) string {
	dir, err := ioutil.TempDir("", "fakecam")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	filename := filepath.Join(dir, "libcamera-vid")
	require.NoError(t, ioutil.WriteFile(filename, []byte(fakeCameraScript+body), 0755))
	return filename
}

func newTestRecorder(command string) *CameraRecorder {
	conf := DefaultConfig()
	conf.Command = command
	conf.StopTimeout = 2 * time.Second
	cr := New(conf, 0)
	cr.stdout = nil
	cr.stderr = nil
	return cr
}

func outputDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "recordings")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestArgs(t *testing.T) {
	cr := New(DefaultConfig(), 0)
	assert.Equal(t, []string{
		"-t", "1620000",
		"-o", "/mnt/DATA/UrchinPOD/video_2026-01-02_03-04-05.h264.temp",
		"--width", "1280",
		"--height", "720",
		"--framerate", "30",
		"--bitrate", "3000000",
		"--inline",
		"--nopreview",
	}, cr.Args("/mnt/DATA/UrchinPOD/video_2026-01-02_03-04-05.h264.temp", 27*time.Minute))
}

func TestArgsExtra(t *testing.T) {
	conf := DefaultConfig()
	conf.ExtraArgs = []string{"--rotation", "180"}
	cr := New(conf, 0)
	args := cr.Args("out.h264", 10*time.Second)
	assert.Equal(t, []string{"--nopreview", "--rotation", "180"}, args[len(args)-3:])
	assert.Equal(t, "10000", args[1])
}

func TestArgsNeverRecordsIndefinitely(t *testing.T) {
	cr := New(DefaultConfig(), 0)
	assert.Equal(t, "1", cr.Args("out.h264", 500*time.Microsecond)[1])
	assert.Equal(t, "1", cr.Args("out.h264", 0)[1])
}

func TestNextFileEmbedsTimestamp(t *testing.T) {
	dir := outputDir(t)
	cr := New(DefaultConfig(), 0)
	cr.nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local) }

	assert.Equal(t, filepath.Join(dir, "video_2026-01-02_03-04-05.h264"), cr.NextFile(dir))
}

func TestNextFileDoesNotCollide(t *testing.T) {
	dir := outputDir(t)
	cr := New(DefaultConfig(), 0)
	cr.nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local) }

	first := cr.NextFile(dir)
	require.NoError(t, ioutil.WriteFile(first, []byte("x"), 0644))
	second := cr.NextFile(dir)
	require.NoError(t, ioutil.WriteFile(second+".temp", []byte("x"), 0644))
	third := cr.NextFile(dir)

	assert.Equal(t, filepath.Join(dir, "video_2026-01-02_03-04-05_1.h264"), second)
	assert.Equal(t, filepath.Join(dir, "video_2026-01-02_03-04-05_2.h264"), third)
}

func TestRecord(t *testing.T) {
	dir := outputDir(t)
	cr := newTestRecorder(writeFakeCamera(t, `echo frames > "$out"`))
	filename := cr.NextFile(dir)

	require.NoError(t, cr.Record(context.Background(), filename, time.Second))

	buf, err := ioutil.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "frames\n", string(buf))
	assert.NoFileExists(t, filename+".temp")
}

func TestRecordNonZeroExit(t *testing.T) {
	dir := outputDir(t)
	command := writeFakeCamera(t, "exit 3")
	cr := newTestRecorder(command)
	filename := cr.NextFile(dir)

	err := cr.Record(context.Background(), filename, time.Second)

	require.Error(t, err)
	captureErr, ok := err.(*CaptureError)
	require.True(t, ok)
	assert.Equal(t, 3, captureErr.ExitCode)
	assert.Equal(t, command, captureErr.Command[0])
	assert.Contains(t, captureErr.CommandLine(), "--nopreview")
	assert.EqualError(t, err, command+" exited with code 3")
	assert.NoFileExists(t, filename)
}

func TestRecordKeepsPartialFileOnFailure(t *testing.T) {
	dir := outputDir(t)
	cr := newTestRecorder(writeFakeCamera(t, `echo some > "$out"; exit 1`))
	filename := cr.NextFile(dir)

	err := cr.Record(context.Background(), filename, time.Second)

	assert.IsType(t, &CaptureError{}, err)
	assert.FileExists(t, filename)
}

func TestRecordMissingCommand(t *testing.T) {
	dir := outputDir(t)
	cr := newTestRecorder(filepath.Join(dir, "no-such-camera"))

	err := cr.Record(context.Background(), cr.NextFile(dir), time.Second)

	captureErr, ok := err.(*CaptureError)
	require.True(t, ok)
	assert.Equal(t, -1, captureErr.ExitCode)
	assert.Error(t, cr.CheckCommand())
}

func TestRecordCancelInterruptsCapture(t *testing.T) {
	dir := outputDir(t)
	cr := newTestRecorder(writeFakeCamera(t, `trap 'echo partial > "$out"; exit 0' INT
sleep 30 &
wait
`))
	filename := cr.NextFile(dir)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	err := cr.Record(ctx, filename, time.Minute)

	assert.Equal(t, context.Canceled, err)
	assert.True(t, time.Since(start) < 10*time.Second)
	buf, err := ioutil.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "partial\n", string(buf))
}

func TestCheckCanRecord(t *testing.T) {
	dir := outputDir(t)

	assert.NoError(t, New(DefaultConfig(), 0).CheckCanRecord(dir))
	assert.EqualError(t, New(DefaultConfig(), 1<<50).CheckCanRecord(dir),
		"not enough free disk space to start recording")
}

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())

	conf.Bitrate = 0
	assert.EqualError(t, conf.Validate(), "camera bitrate should be positive")

	conf = DefaultConfig()
	conf.Command = ""
	assert.EqualError(t, conf.Validate(), "camera command must be set")
}
