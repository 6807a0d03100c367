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

package janitor

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"

	ps "github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid  int
	exe  string
	args []string
}

func (p *fakeProcess) Pid() int           { return p.pid }
func (p *fakeProcess) PPid() int          { return 1 }
func (p *fakeProcess) Executable() string { return p.exe }

type fakeTable struct {
	procs      []*fakeProcess
	terminated []int
	denied     map[int]bool
}

func newTestJanitor(table *fakeTable, self int) *Janitor {
	j := New([]string{"libcamera-vid", "rpicam-vid"})
	j.self = self
	j.processes = func() ([]ps.Process, error) {
		var procs []ps.Process
		for _, p := range table.procs {
			procs = append(procs, p)
		}
		return procs, nil
	}
	j.cmdline = func(pid int) ([]string, error) {
		for _, p := range table.procs {
			if p.pid == pid {
				return p.args, nil
			}
		}
		return nil, os.ErrNotExist
	}
	j.terminate = func(pid int) error {
		if table.denied[pid] {
			return errors.New("operation not permitted")
		}
		table.terminated = append(table.terminated, pid)
		return nil
	}
	return j
}

func captureLogs() (*bytes.Buffer, func()) {
	flags := log.Flags()
	log.SetFlags(0)
	logs := new(bytes.Buffer)
	log.SetOutput(logs)
	return logs, func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}
}

func TestKillsMatchingProcesses(t *testing.T) {
	logs, reset := captureLogs()
	defer reset()

	table := &fakeTable{procs: []*fakeProcess{
		{pid: 10, exe: "bash"},
		{pid: 11, exe: "libcamera-vid"},
		{pid: 12, exe: "sh", args: []string{"sh", "-c", "rpicam-vid -t 0 -o -"}},
		{pid: 13, exe: "sshd"},
	}}
	j := newTestJanitor(table, 99)

	killed, err := j.KillStuck()

	require.NoError(t, err)
	assert.Equal(t, []Killed{{Pid: 11, Name: "libcamera-vid"}, {Pid: 12, Name: "sh"}}, killed)
	assert.Equal(t, []int{11, 12}, table.terminated)
	assert.Equal(t,
		"Killed stuck process: libcamera-vid (PID 11)\nKilled stuck process: sh (PID 12)\n",
		logs.String())
}

func TestSkipsSelf(t *testing.T) {
	table := &fakeTable{procs: []*fakeProcess{
		{pid: 42, exe: "urchin-recorder", args: []string{"urchin-recorder", "--config", "libcamera-vid.yaml"}},
	}}
	j := newTestJanitor(table, 42)

	killed, err := j.KillStuck()

	require.NoError(t, err)
	assert.Empty(t, killed)
	assert.Empty(t, table.terminated)
}

func TestNothingFound(t *testing.T) {
	logs, reset := captureLogs()
	defer reset()

	table := &fakeTable{procs: []*fakeProcess{{pid: 10, exe: "bash"}}}
	killed, err := newTestJanitor(table, 99).KillStuck()

	require.NoError(t, err)
	assert.Empty(t, killed)
	assert.Equal(t, "No stuck camera processes found.\n", logs.String())
}

func TestTerminateFailureSkipped(t *testing.T) {
	table := &fakeTable{
		procs: []*fakeProcess{
			{pid: 11, exe: "libcamera-vid"},
			{pid: 12, exe: "rpicam-vid"},
		},
		denied: map[int]bool{11: true},
	}

	killed, err := newTestJanitor(table, 99).KillStuck()

	require.NoError(t, err)
	assert.Equal(t, []Killed{{Pid: 12, Name: "rpicam-vid"}}, killed)
}

func TestProcessListError(t *testing.T) {
	j := New([]string{"libcamera-vid"})
	j.processes = func() ([]ps.Process, error) { return nil, errors.New("no /proc") }

	_, err := j.KillStuck()
	assert.EqualError(t, err, "no /proc")
}

func TestReadCmdlineOfSelf(t *testing.T) {
	args, err := readCmdline(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Args, args)
}
