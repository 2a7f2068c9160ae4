// Mass storage facade
//
// G-code still names files the way the SD-card firmware did, with a
// volume prefix ("0:/gcodes/part.g"). This layer maps those names onto
// a host directory tree and hides the OS behind a small surface the
// G-code machinery can use.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/errors"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
)

// Well-known directories and files, in volume notation.
const (
	WebDir     = "0:/www/"
	GCodeDir   = "0:/gcodes/"
	SysDir     = "0:/sys/"
	ConfigFile = "config.g"
)

// MassStorage maps volume-notation file names onto the host
// filesystem.
type MassStorage struct {
	logger *log.Logger
	root   string

	mu           sync.Mutex
	longestWrite time.Duration
}

// NewMassStorage roots the volume at dir, creating the standard
// layout if it is missing.
func NewMassStorage(dir string) (*MassStorage, error) {
	ms := &MassStorage{
		logger: log.GetLogger("storage"),
		root:   dir,
	}
	for _, sub := range []string{"gcodes", "sys", "www"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.OpenError(filepath.Join(dir, sub), err)
		}
	}
	return ms, nil
}

// CombineName joins a directory and a file name, tolerating names that
// already carry a directory or volume prefix.
func (ms *MassStorage) CombineName(dir, name string) string {
	if strings.Contains(name, ":") || strings.HasPrefix(name, "/") {
		return name
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir + name
}

// hostPath translates volume notation to a host path.
func (ms *MassStorage) hostPath(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "/")
	return filepath.Join(ms.root, filepath.FromSlash(name))
}

// FileExists reports whether the named file is present.
func (ms *MassStorage) FileExists(dir, name string) bool {
	info, err := os.Stat(ms.hostPath(ms.CombineName(dir, name)))
	return err == nil && !info.IsDir()
}

// FileNames lists the plain files in a directory, sorted, without
// paths. Used by M20.
func (ms *MassStorage) FileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(ms.hostPath(dir))
	if err != nil {
		return nil, errors.OpenError(dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a file. Deleting a missing file is an error so the
// host notices typos.
func (ms *MassStorage) Delete(dir, name string) error {
	full := ms.CombineName(dir, name)
	if err := os.Remove(ms.hostPath(full)); err != nil {
		return errors.WriteError(full, err)
	}
	return nil
}

// MakeDirectory creates a directory, parents included.
func (ms *MassStorage) MakeDirectory(dir string) error {
	if err := os.MkdirAll(ms.hostPath(dir), 0o755); err != nil {
		return errors.WriteError(dir, err)
	}
	return nil
}

// Rename moves a file within the volume.
func (ms *MassStorage) Rename(oldName, newName string) error {
	if err := os.Rename(ms.hostPath(oldName), ms.hostPath(newName)); err != nil {
		return errors.WriteError(newName, err)
	}
	return nil
}

// OpenFile opens a file for reading, or creates/truncates it for
// writing. A missing file for reading returns nil without an error
// message here; the callers report in their own voice.
func (ms *MassStorage) OpenFile(dir, name string, write bool) *FileStore {
	full := ms.CombineName(dir, name)
	path := ms.hostPath(full)

	var f *os.File
	var err error
	if write {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	} else {
		f, err = os.Open(path)
	}
	if err != nil {
		ms.logger.Debug("open %s: %v", full, err)
		return nil
	}
	fs := &FileStore{ms: ms, file: f, name: full, writing: write}
	if !write {
		if info, statErr := f.Stat(); statErr == nil {
			fs.length = info.Size()
		}
	}
	return fs
}

func (ms *MassStorage) recordWriteTime(d time.Duration) {
	ms.mu.Lock()
	if d > ms.longestWrite {
		ms.longestWrite = d
	}
	ms.mu.Unlock()
}

// GetAndClearLongestWriteTime reports the slowest block write since
// the last call, in milliseconds. M122 prints it to catch media that
// is going bad.
func (ms *MassStorage) GetAndClearLongestWriteTime() float64 {
	ms.mu.Lock()
	d := ms.longestWrite
	ms.longestWrite = 0
	ms.mu.Unlock()
	return float64(d) / float64(time.Millisecond)
}
