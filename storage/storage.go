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

package storage

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
)

// TempExt is appended to recordings while they are being written.
const TempExt = ".temp"

type Config struct {
	LocalDir     string `yaml:"local-dir"`
	USBSubdir    string `yaml:"usb-subdir"`
	LogName      string `yaml:"log-name"`
	MinDiskSpace uint64 `yaml:"min-disk-space"`
}

func DefaultConfig() Config {
	return Config{
		LocalDir:     "/home/pi/UrchinPOD",
		USBSubdir:    "UrchinPOD",
		LogName:      "urchin_log.txt",
		MinDiskSpace: 200,
	}
}

func (conf *Config) Validate() error {
	if conf.LocalDir == "" {
		return errors.New("local-dir must be set")
	}
	if conf.LogName == "" || filepath.Base(conf.LogName) != conf.LogName {
		return errors.New("log-name should be a plain file name")
	}
	return nil
}

// Session is where video files and the log are written for a run.
type Session struct {
	Dir     string
	LogFile string
	OnUSB   bool
}

// Resolve picks the session folder. If mountPoint is empty the recordings
// go to local storage. The folder is created if it doesn't exist.
func Resolve(conf Config, mountPoint string) (*Session, error) {
	s := &Session{}
	if mountPoint != "" {
		s.Dir = filepath.Join(mountPoint, conf.USBSubdir)
		s.OnUSB = true
	} else {
		s.Dir = conf.LocalDir
	}
	s.LogFile = filepath.Join(s.Dir, conf.LogName)

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, err
	}
	return s, nil
}

// CheckDiskSpace reports whether dir has at least mb megabytes free.
func CheckDiskSpace(mb uint64, dir string) (bool, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return false, err
	}
	return fs.Bavail*uint64(fs.Bsize)/1024/1024 >= mb, nil
}

var reTempName = regexp.MustCompile(`(.+)\.temp$`)

// FinalName strips the temp extension from filename.
func FinalName(filename string) string {
	return reTempName.ReplaceAllString(filename, `$1`)
}

// RenameTemp moves a finished recording to its final name.
func RenameTemp(tempName string) (string, error) {
	finalName := FinalName(tempName)
	if err := os.Rename(tempName, finalName); err != nil {
		return "", err
	}
	return finalName, nil
}

// RecoverTempFiles renames recordings left behind by a run that didn't
// shut down cleanly. Empty ones are removed.
func RecoverTempFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+TempExt))
	if err != nil {
		return nil, err
	}
	var recovered []string
	for _, tempName := range matches {
		info, err := os.Stat(tempName)
		if err != nil {
			return recovered, err
		}
		if info.Size() == 0 {
			if err := os.Remove(tempName); err != nil {
				return recovered, err
			}
			continue
		}
		finalName, err := RenameTemp(tempName)
		if err != nil {
			return recovered, err
		}
		log.Printf("recovered partial recording: %s", finalName)
		recovered = append(recovered, finalName)
	}
	return recovered, nil
}
