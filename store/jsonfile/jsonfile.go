// Package jsonfile provides a Store persisted as a single JSON document:
//
//	{"users": {"<id>": {...}}, "promocodes": {"<CODE>": {...}}}
//
// The file is read once at Open. Every committed transaction rewrites it
// atomically (temp file + rename); a failed write leaves both the file and
// the in-memory state as they were.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/store/memory"
)

// Store is a botledger.Store backed by a JSON file.
type Store struct {
	*memory.Store
	path string
}

var (
	_ botledger.Store    = (*Store)(nil)
	_ botledger.Exporter = (*Store)(nil)
	_ botledger.Importer = (*Store)(nil)
)

// Open loads path, or starts empty if it does not exist yet.
func Open(path string) (*Store, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path}
	s.Store = memory.New(
		memory.WithSnapshot(snap),
		memory.WithPersister(s.write),
	)
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads a state file. A missing file yields an empty snapshot.
func Load(path string) (botledger.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return botledger.NewSnapshot(), nil
	}
	if err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/jsonfile: read", err)
	}
	return Decode(data)
}

// Decode parses a state document, tolerating missing sections.
func Decode(data []byte) (botledger.Snapshot, error) {
	snap := botledger.NewSnapshot()
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/jsonfile: decode", err)
	}
	if snap.Users == nil {
		snap.Users = make(map[string]botledger.Account)
	}
	if snap.Promocodes == nil {
		snap.Promocodes = make(map[string]botledger.PromoCode)
	}
	return snap, nil
}

// Encode renders a state document with two-space indentation.
func Encode(snap botledger.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("botledger/jsonfile: encode: %w", err)
	}
	return append(data, '\n'), nil
}

func (s *Store) write(snap botledger.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("botledger/jsonfile: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("botledger/jsonfile: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("botledger/jsonfile: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("botledger/jsonfile: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("botledger/jsonfile: rename: %w", err)
	}
	return nil
}
