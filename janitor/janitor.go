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
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"

	ps "github.com/mitchellh/go-ps"
)

// Killed describes a process that was sent SIGTERM.
type Killed struct {
	Pid  int
	Name string
}

func New(names []string) *Janitor {
	return &Janitor{
		names:     names,
		self:      os.Getpid(),
		processes: ps.Processes,
		cmdline:   readCmdline,
		terminate: terminate,
	}
}

// Janitor terminates capture processes left behind by an earlier run, as
// these hold on to the camera and stop a new capture from starting.
type Janitor struct {
	names     []string
	self      int
	processes func() ([]ps.Process, error)
	cmdline   func(pid int) ([]string, error)
	terminate func(pid int) error
}

// KillStuck sends SIGTERM to every process whose executable name or
// command line contains one of the configured names.
func (j *Janitor) KillStuck() ([]Killed, error) {
	procs, err := j.processes()
	if err != nil {
		return nil, err
	}

	var killed []Killed
	for _, proc := range procs {
		if proc.Pid() == j.self || !j.matches(proc) {
			continue
		}
		if err := j.terminate(proc.Pid()); err != nil {
			// Gone already, or not ours to kill.
			log.Printf("could not terminate %s (PID %d): %v", proc.Executable(), proc.Pid(), err)
			continue
		}
		log.Printf("Killed stuck process: %s (PID %d)", proc.Executable(), proc.Pid())
		killed = append(killed, Killed{Pid: proc.Pid(), Name: proc.Executable()})
	}
	if len(killed) == 0 {
		log.Print("No stuck camera processes found.")
	}
	return killed, nil
}

func (j *Janitor) matches(proc ps.Process) bool {
	for _, name := range j.names {
		if strings.Contains(proc.Executable(), name) {
			return true
		}
	}
	args, err := j.cmdline(proc.Pid())
	if err != nil {
		return false
	}
	for _, arg := range args {
		for _, name := range j.names {
			if strings.Contains(arg, name) {
				return true
			}
		}
	}
	return false
}

func readCmdline(pid int) ([]string, error) {
	buf, err := ioutil.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil {
		return nil, err
	}
	var args []string
	for _, arg := range bytes.Split(bytes.TrimRight(buf, "\x00"), []byte{0}) {
		args = append(args, string(arg))
	}
	return args, nil
}

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
