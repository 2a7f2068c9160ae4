// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package nvram

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/errors"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
)

// MaxRecordSize bounds the encoded parameter record. The layout must
// stay within one storage sector.
const MaxRecordSize = 1024

// Backend is the raw two-slot non-volatile storage: slot 0 holds the
// parameter record, slot 1 the software-reset record.
type Backend interface {
	ReadRecord() ([]byte, error)
	WriteRecord(data []byte) error
	ReadResetData() ([]byte, error)
	WriteResetData(data []byte) error
}

// Store is the firmware's view of non-volatile memory: a decoded
// Record plus write-through policy.
type Store struct {
	backend  Backend
	logger   *log.Logger
	data     Record
	autoSave bool
}

// NewStore creates a store over the given backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  log.GetLogger("nvram"),
	}
}

// Data exposes the in-memory record. Mutations must be followed by
// Changed() so write-through can happen.
func (s *Store) Data() *Record {
	return &s.data
}

// Load reads the record from storage. A missing or magic-mismatched
// record re-initializes defaults in memory only; nothing is written
// back until the first mutation under auto-save.
func (s *Store) Load() {
	raw, err := s.backend.ReadRecord()
	if err == nil {
		err = decodeRecord(raw, &s.data)
	}
	if err != nil || s.data.Magic != RecordMagic {
		s.logger.Warn("stored parameters invalid, using defaults")
		s.data.SetDefaults()
		return
	}
	s.logger.Debug("loaded %d byte parameter record", len(raw))
}

// Save writes the whole record as one block, synchronously.
func (s *Store) Save() error {
	s.data.Magic = RecordMagic
	raw, err := encodeRecord(&s.data)
	if err != nil {
		return err
	}
	if err := s.backend.WriteRecord(raw); err != nil {
		return errors.WriteError("parameter record", err)
	}
	return nil
}

// SetAutoSave enables or disables write-through. Enabling it saves
// immediately so storage and memory agree from that point on.
func (s *Store) SetAutoSave(enabled bool) error {
	s.autoSave = enabled
	if enabled {
		return s.Save()
	}
	return nil
}

// AutoSave reports the write-through policy.
func (s *Store) AutoSave() bool {
	return s.autoSave
}

// Changed is called after any mutation of the record. Under auto-save
// the write completes before this returns; callers are always on the
// main loop, never an interrupt.
func (s *Store) Changed() error {
	if !s.autoSave {
		return nil
	}
	return s.Save()
}

// WriteResetData records the reason for an imminent software reset.
func (s *Store) WriteResetData(reason uint16, neverUsedRAM uint32) error {
	rec := SoftwareResetData{
		Magic:        ResetMagic,
		ResetReason:  reason,
		NeverUsedRAM: neverUsedRAM,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return err
	}
	if err := s.backend.WriteResetData(buf.Bytes()); err != nil {
		return errors.WriteError("reset record", err)
	}
	return nil
}

// ReadResetData returns the last software-reset record, if any was
// written with a matching magic.
func (s *Store) ReadResetData() (SoftwareResetData, bool) {
	var rec SoftwareResetData
	raw, err := s.backend.ReadResetData()
	if err != nil {
		return rec, false
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rec); err != nil {
		return rec, false
	}
	return rec, rec.Magic == ResetMagic
}

func encodeRecord(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
		return nil, err
	}
	if buf.Len() > MaxRecordSize {
		return nil, fmt.Errorf("parameter record is %d bytes, limit %d", buf.Len(), MaxRecordSize)
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte, r *Record) error {
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, r)
}
