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

// Package usbmount finds, mounts and remembers the USB drive that
// recordings are written to.
package usbmount

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// FullID in the id file means the drive has been dealt with by hand: the
// mount point is used as is and nothing is mounted.
const FullID = "FULL"

// ErrNoDevice is returned when there is no removable, unmounted partition
// to mount.
var ErrNoDevice = errors.New("no removable unmounted partition found")

type Config struct {
	Enabled       bool   `yaml:"enabled"`
	MountPoint    string `yaml:"mount-point"`
	IDFile        string `yaml:"id-file"`
	DefaultDevice string `yaml:"default-device"`
	User          string `yaml:"user"`
	Group         string `yaml:"group"`
	Sudo          bool   `yaml:"sudo"`
	FallbackLocal bool   `yaml:"fallback-local"`
	MountAttempts int    `yaml:"mount-attempts"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MountPoint:    "/mnt/DATA",
		IDFile:        "/home/pi/usb_id.txt",
		DefaultDevice: "sda1",
		User:          "pi",
		Group:         "pi",
		Sudo:          true,
		FallbackLocal: true,
		MountAttempts: 3,
	}
}

func (conf *Config) Validate() error {
	if !conf.Enabled {
		return nil
	}
	if conf.MountPoint == "" {
		return errors.New("usb mount-point must be set")
	}
	if conf.IDFile == "" {
		return errors.New("usb id-file must be set")
	}
	if conf.MountAttempts < 1 {
		return errors.New("usb mount-attempts should be at least 1")
	}
	return nil
}

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		err = fmt.Errorf("%v: %s", err, bytes.TrimSpace(exitErr.Stderr))
	}
	return out, err
}

// Partition is a block device as reported by lsblk.
type Partition struct {
	Name       string
	MountPoint string
	Type       string
	Removable  bool
}

func New(conf Config) *Manager {
	return &Manager{
		conf:       conf,
		runner:     execRunner{},
		mountsFile: "/proc/self/mounts",
		devDir:     "/dev",
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			return b
		},
	}
}

type Manager struct {
	conf       Config
	runner     Runner
	mountsFile string
	devDir     string
	newBackOff func() backoff.BackOff
}

// Mount makes the USB drive available at the configured mount point and
// returns the mount point. Nothing is mounted if the mount point is
// already in use.
func (m *Manager) Mount(ctx context.Context) (string, error) {
	mp := m.conf.MountPoint
	if err := os.MkdirAll(mp, 0755); err != nil {
		return "", err
	}

	id, err := m.readID()
	if err != nil {
		return "", err
	}
	if id == FullID {
		log.Printf("USB id is %s, using %s without mounting", FullID, mp)
		return mp, nil
	}

	mounted, err := m.IsMounted()
	if err != nil {
		return "", err
	}
	if mounted {
		log.Printf("%s is already mounted", mp)
		return mp, nil
	}

	if id != "" && !m.devicePresent(id) {
		log.Printf("USB device %s not present, looking for another", id)
		id = ""
	}
	if id == "" {
		id, err = m.findDevice(ctx)
		if err != nil {
			return "", err
		}
		if err := m.writeID(id); err != nil {
			return "", err
		}
	}

	device := filepath.Join(m.devDir, id)
	opts := fmt.Sprintf("uid=%s,gid=%s", m.conf.User, m.conf.Group)
	attempt := 0
	mount := func() error {
		attempt++
		_, err := m.run(ctx, "mount", device, mp, "-o", opts)
		if err != nil {
			log.Printf("ERROR: Failed to mount %s to %s (attempt %d): %v", device, mp, attempt, err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(m.conf.MountAttempts-1)), ctx)
	if err := backoff.Retry(mount, b); err != nil {
		return "", fmt.Errorf("failed to mount %s to %s: %v", device, mp, err)
	}
	log.Printf("Mounted %s to %s", device, mp)

	owner := m.conf.User + ":" + m.conf.Group
	if _, err := m.run(ctx, "chown", "-R", owner, mp); err != nil {
		log.Printf("could not change owner of %s to %s: %v", mp, owner, err)
	}
	m.logLabel(ctx, device)
	return mp, nil
}

// IsMounted reports whether something is mounted at the mount point.
func (m *Manager) IsMounted() (bool, error) {
	f, err := os.Open(m.mountsFile)
	if err != nil {
		return false, err
	}
	defer f.Close()

	target := filepath.Clean(m.conf.MountPoint)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if filepath.Clean(unescapeMountField(fields[1])) == target {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// Candidates lists the removable partitions which aren't mounted.
func (m *Manager) Candidates(ctx context.Context) ([]Partition, error) {
	out, err := m.runner.Run(ctx, "lsblk", "-P", "-n", "-o", "NAME,MOUNTPOINT,RM,TYPE")
	if err != nil {
		return nil, err
	}
	var candidates []Partition
	for _, p := range ParseLsblk(out) {
		if p.Type == "part" && p.Removable && p.MountPoint == "" {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil
}

func (m *Manager) findDevice(ctx context.Context) (string, error) {
	candidates, err := m.Candidates(ctx)
	if err != nil {
		if m.conf.DefaultDevice == "" {
			return "", fmt.Errorf("listing block devices failed: %v", err)
		}
		log.Printf("listing block devices failed (%v), using %s", err, m.conf.DefaultDevice)
		return m.conf.DefaultDevice, nil
	}
	if len(candidates) == 0 {
		return "", ErrNoDevice
	}
	log.Printf("found removable partition %s", candidates[0].Name)
	return candidates[0].Name, nil
}

func (m *Manager) logLabel(ctx context.Context, device string) {
	out, err := m.run(ctx, "blkid", "-s", "LABEL", "-o", "value", device)
	if err != nil {
		log.Printf("ERROR: Could not get USB label from blkid: %v", err)
		return
	}
	if label := strings.TrimSpace(string(out)); label != "" {
		log.Printf("USB label: %s", label)
	}
}

func (m *Manager) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.conf.Sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	return m.runner.Run(ctx, name, args...)
}

func (m *Manager) devicePresent(id string) bool {
	_, err := os.Stat(filepath.Join(m.devDir, id))
	return err == nil
}

func (m *Manager) readID() (string, error) {
	buf, err := ioutil.ReadFile(m.conf.IDFile)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}

func (m *Manager) writeID(id string) error {
	if err := os.MkdirAll(filepath.Dir(m.conf.IDFile), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(m.conf.IDFile, []byte(id+"\n"), 0644)
}

var reLsblkPair = regexp.MustCompile(`([A-Z:-]+)="((?:[^"\\]|\\.)*)"`)

// ParseLsblk parses the output of `lsblk -P -o NAME,MOUNTPOINT,RM,TYPE`.
func ParseLsblk(out []byte) []Partition {
	var parts []Partition
	for _, line := range strings.Split(string(out), "\n") {
		pairs := reLsblkPair.FindAllStringSubmatch(line, -1)
		if len(pairs) == 0 {
			continue
		}
		var p Partition
		for _, pair := range pairs {
			switch pair[1] {
			case "NAME":
				p.Name = pair[2]
			case "MOUNTPOINT":
				p.MountPoint = pair[2]
			case "TYPE":
				p.Type = pair[2]
			case "RM":
				p.Removable = pair[2] == "1"
			}
		}
		parts = append(parts, p)
	}
	return parts
}

// unescapeMountField decodes the octal escapes used in /proc/self/mounts.
func unescapeMountField(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
