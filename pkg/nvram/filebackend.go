// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package nvram

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileBackend emulates the two flash sectors with two small files
// under one directory. Record writes go through a temp file and an
// atomic rename; a timestamped backup of the previous record is kept
// so a bad tuning session can be undone by hand.
type FileBackend struct {
	dir        string
	keepBackup bool
}

const (
	recordFile = "nvdata.bin"
	resetFile  = "reset.bin"
)

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string, keepBackup bool) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir, keepBackup: keepBackup}, nil
}

// ReadRecord returns the raw parameter record.
func (b *FileBackend) ReadRecord() ([]byte, error) {
	return os.ReadFile(filepath.Join(b.dir, recordFile))
}

// WriteRecord replaces the parameter record atomically.
func (b *FileBackend) WriteRecord(data []byte) error {
	path := filepath.Join(b.dir, recordFile)
	if b.keepBackup {
		if err := b.backup(path); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}
	tmp, err := os.CreateTemp(b.dir, ".nvdata-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ReadResetData returns the raw software-reset record.
func (b *FileBackend) ReadResetData() ([]byte, error) {
	return os.ReadFile(filepath.Join(b.dir, resetFile))
}

// WriteResetData replaces the software-reset record. No backup: this
// slot is scratch data rewritten on every software reset.
func (b *FileBackend) WriteResetData(data []byte) error {
	return os.WriteFile(filepath.Join(b.dir, resetFile), data, 0644)
}

// backup copies the current record to nvdata-20060102_150405.bin.
func (b *FileBackend) backup(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	timestamp := time.Now().Format("20060102_150405")
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	return os.WriteFile(fmt.Sprintf("%s-%s%s", base, timestamp, ext), data, 0644)
}
