// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/safeoff/safeoff/lib/clock"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("another agent is issuing a poweroff")

const (
	lockName   = "poweroff.lock"
	recordName = "poweroff.json"
)

// Record describes an issued power-off.
type Record struct {
	// Session is the ID of the agent session that issued it.
	Session string `json:"session"`

	// Mechanism is the mechanism that succeeded.
	Mechanism string `json:"mechanism"`

	PID int `json:"pid"`

	// IssuedAt is when the OS accepted the request. Used to discard
	// records older than the store's TTL.
	IssuedAt time.Time `json:"issued_at"`
}

// Store keeps the lock and record in one directory.
type Store struct {
	directory string
	ttl       time.Duration
	clock     clock.Clock
}

// NewStore returns a Store in directory. Records older than ttl are
// ignored. The directory is created on first use.
func NewStore(directory string, ttl time.Duration, clk clock.Clock) *Store {
	return &Store{directory: directory, ttl: ttl, clock: clk}
}

// Directory returns the store's directory.
func (s *Store) Directory() string { return s.directory }

// Acquire takes the host-wide power-off lock without blocking. The
// returned function releases it. The lock is also released if the
// process dies.
func (s *Store) Acquire() (func(), error) {
	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	path := filepath.Join(s.directory, lockName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return func() {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
	}, nil
}

// Issued returns the current record and true when a power-off was
// issued within the TTL. A missing or expired record is (zero, false,
// nil). Any other error (permission denied, corrupt JSON) is returned
// so the caller can distinguish "no record" from "record unreadable".
func (s *Store) Issued() (Record, bool, error) {
	record, err := Read(filepath.Join(s.directory, recordName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if s.clock.Now().Sub(record.IssuedAt) > s.ttl {
		return Record{}, false, nil
	}
	return record, true, nil
}

// Record writes record as the latest issued power-off.
func (s *Store) Record(record Record) error {
	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return Write(filepath.Join(s.directory, recordName), record)
}

// Write atomically writes a record file. The file is written to a
// temporary location in the same directory, fsynced, and renamed into
// place. Readers never see a partial write.
//
// The file is created with mode 0600. The parent directory must
// already exist.
func Write(path string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling poweroff record: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary record file: %w", err)
	}

	// Write, sync, close, in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary record file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary record file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary record file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming record file into place: %w", err)
	}

	// The rename must survive the power cut that follows.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read reads and parses a record file. When the file does not exist,
// the returned error wraps os.ErrNotExist.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing poweroff record %s: %w", path, err)
	}
	return record, nil
}
