// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/errors"
)

// fileWriteBuffer batches host uploads into block-sized writes so the
// per-write timing seen by M122 reflects the medium, not single bytes.
const fileWriteBuffer = 256

// FileStore is one open file. Reads are byte-at-a-time to feed the
// G-code assembler; writes are buffered in fixed blocks.
type FileStore struct {
	ms   *MassStorage
	file *os.File
	name string

	writing bool
	reader  *bufio.Reader

	writeBuf [fileWriteBuffer]byte
	writeLen int

	position int64
	length   int64
}

// Name returns the volume-notation name the file was opened with.
func (fs *FileStore) Name() string {
	return fs.name
}

// Read returns the next byte, and false at end of file.
func (fs *FileStore) Read() (byte, bool) {
	if fs.writing || fs.file == nil {
		return 0, false
	}
	if fs.reader == nil {
		fs.reader = bufio.NewReader(fs.file)
	}
	b, err := fs.reader.ReadByte()
	if err != nil {
		return 0, false
	}
	fs.position++
	return b, true
}

// Write appends one byte.
func (fs *FileStore) Write(b byte) error {
	if !fs.writing || fs.file == nil {
		return errors.WriteError(fs.name, io.ErrClosedPipe)
	}
	fs.writeBuf[fs.writeLen] = b
	fs.writeLen++
	fs.position++
	if fs.writeLen == fileWriteBuffer {
		return fs.flushBlock()
	}
	return nil
}

// WriteString appends a string.
func (fs *FileStore) WriteString(s string) error {
	for i := 0; i < len(s); i++ {
		if err := fs.Write(s[i]); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStore) flushBlock() error {
	if fs.writeLen == 0 {
		return nil
	}
	start := time.Now()
	_, err := fs.file.Write(fs.writeBuf[:fs.writeLen])
	fs.ms.recordWriteTime(time.Since(start))
	fs.writeLen = 0
	if err != nil {
		return errors.WriteError(fs.name, err)
	}
	return nil
}

// Seek repositions a read. The buffered reader is discarded so the
// next Read starts at the new position.
func (fs *FileStore) Seek(pos int64) error {
	if fs.writing {
		return errors.WriteError(fs.name, io.ErrClosedPipe)
	}
	if _, err := fs.file.Seek(pos, io.SeekStart); err != nil {
		return errors.ReadError(fs.name, err)
	}
	fs.position = pos
	fs.reader = nil
	return nil
}

// Position returns the current byte offset.
func (fs *FileStore) Position() int64 {
	return fs.position
}

// Length returns the file size known at open time.
func (fs *FileStore) Length() int64 {
	return fs.length
}

// FractionRead reports progress through the file, 0..1, or -1 when it
// cannot be known.
func (fs *FileStore) FractionRead() float64 {
	if fs.length <= 0 {
		return -1
	}
	return float64(fs.position) / float64(fs.length)
}

// Close flushes any buffered writes and releases the file.
func (fs *FileStore) Close() error {
	var flushErr error
	if fs.writing {
		flushErr = fs.flushBlock()
		if syncErr := fs.file.Sync(); flushErr == nil && syncErr != nil {
			flushErr = errors.WriteError(fs.name, syncErr)
		}
	}
	closeErr := fs.file.Close()
	fs.file = nil
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return errors.WriteError(fs.name, closeErr)
	}
	return nil
}
