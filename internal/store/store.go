// Package store persists per-channel calibration in a YAML file, namespaced
// by operating profile.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/uselessbox/internal/logic"
)

// Profile selects the calibration namespace.
type Profile string

const (
	ProfileNormal  Profile = "normal"
	ProfileBattery Profile = "battery"
)

// DefaultPath is where the daemon keeps its calibration.
const DefaultPath = "/var/lib/uselessbox/calibration.yaml"

// Entries is the calibration of all channels.
type Entries [logic.NumChannels]logic.Entry

// Defaults returns the compiled-in calibration of a profile.
// Running on battery shifts the sensor range, so it has its own defaults.
func Defaults(p Profile) Entries {
	e := logic.Entry{Touched: 8, Untouched: 30, Threshold: 15}
	if p == ProfileBattery {
		e = logic.Entry{Touched: 12, Untouched: 21, Threshold: 18}
	}
	return Entries{e, e, e, e}
}

// Store loads and saves calibration.
type Store interface {
	// Load returns the calibration of a profile. Missing values are filled
	// from Defaults. On error the defaults are still returned.
	Load(p Profile) (Entries, error)

	// Save replaces the calibration of a profile.
	Save(p Profile, e Entries) error
}

// document is the on-disk layout: profile -> key -> value.
type document map[Profile]map[string]uint16

func keys(c int) (string, string, string) {
	n := c + 1
	return fmt.Sprintf("s%d_min", n), fmt.Sprintf("s%d_max", n), fmt.Sprintf("s%d_th", n)
}

func (d document) entries(p Profile) Entries {
	out := Defaults(p)
	ns := d[p]
	for c := range out {
		kMin, kMax, kTh := keys(c)
		if v, ok := ns[kMin]; ok {
			out[c].Touched = v
		}
		if v, ok := ns[kMax]; ok {
			out[c].Untouched = v
		}
		if v, ok := ns[kTh]; ok {
			out[c].Threshold = v
		}
	}
	return out
}

func (d document) set(p Profile, e Entries) {
	ns := make(map[string]uint16, 3*logic.NumChannels)
	for c, entry := range e {
		kMin, kMax, kTh := keys(c)
		ns[kMin] = entry.Touched
		ns[kMax] = entry.Untouched
		ns[kTh] = entry.Threshold
	}
	d[p] = ns
}

// FileStore keeps calibration in a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (document, error) {
	doc := document{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read calibration: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse calibration %s: %w", s.path, err)
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

// Load implements Store.
func (s *FileStore) Load(p Profile) (Entries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Defaults(p), err
	}
	return doc.entries(p), nil
}

// Save implements Store. Other profiles in the file are preserved.
// The file is replaced atomically.
func (s *FileStore) Save(p Profile, e Entries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		// Unreadable file: start over rather than never saving again.
		doc = document{}
	}
	doc.set(p, e)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".calibration-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync calibration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close calibration: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace calibration: %w", err)
	}
	return nil
}
