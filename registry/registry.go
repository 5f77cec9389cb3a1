// Package registry persists connected sessions in a JSON file.
//
// Records are stored exactly as returned by the connector plus the password
// field, in plaintext. There is no locking between processes, the last writer wins.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/common"
)

// Errors.
var (
	ErrMalformedRegistryData = errors.New("malformed registry data")
	ErrIOFailure             = errors.New("registry I/O failure")
)

// Store - The session registry file.
type Store struct {
	path   string
	atomic bool
}

// New - Create a store for the file at path.
// If atomic is set, saves go through a temporary file and a rename.
func New(path string, atomic bool) *Store {
	return &Store{path: path, atomic: atomic}
}

// Path - The registry file location.
func (store *Store) Path() string {
	return store.path
}

// Load - Read all records. A missing or empty file is an empty registry.
func (store *Store) Load() ([]common.Document, error) {
	dat, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return []common.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if len(bytes.TrimSpace(dat)) == 0 {
		return []common.Document{}, nil
	}

	var records []common.Document
	if err := json.Unmarshal(dat, &records); err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrMalformedRegistryData, store.path, err)
	}
	if records == nil {
		return nil, fmt.Errorf("%w: %v is not a list", ErrMalformedRegistryData, store.path)
	}
	return records, nil
}

// Save - Replace the file contents with the records, indented.
func (store *Store) Save(records []common.Document) error {
	if records == nil {
		records = []common.Document{}
	}
	dat, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	if !store.atomic {
		if err := os.WriteFile(store.path, dat, 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(store.path), "."+filepath.Base(store.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(dat); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := os.Rename(tmp.Name(), store.path); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

// Append - Add a session record with the password used for it, and rewrite the file.
// Returns the new number of records.
func (store *Store) Append(session common.Document, password string) (int, error) {
	records, err := store.Load()
	if err != nil {
		return 0, err
	}

	record := session.Clone()
	if err := record.Set(common.PasswordField, password); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	records = append(records, record)

	if err := store.Save(records); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"path":         store.path,
		"record_count": len(records),
	}).Debug("Saved session registry")
	return len(records), nil
}
