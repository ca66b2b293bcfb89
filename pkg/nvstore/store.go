// Package nvstore keeps the downlink flags which survive a reset.
package nvstore

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"
)

// Memory is a volatile store.
type Memory struct {
	lock  sync.Mutex
	flags map[string]bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{flags: make(map[string]bool)}
}

// ReadBoolState implements downlink.ConfigStore.
func (m *Memory) ReadBoolState(key string, def bool) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if v, ok := m.flags[key]; ok {
		return v, nil
	}
	return def, nil
}

// WriteBoolState implements downlink.ConfigStore.
func (m *Memory) WriteBoolState(key string, val bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.flags[key] = val
	return nil
}

// File persists flags in a YAML document. Every write replaces the file
// atomically.
type File struct {
	Path string

	lock  sync.Mutex
	flags map[string]bool
}

type fileDoc struct {
	Flags map[string]bool `yaml:"flags"`
}

// OpenFile loads the store at path. A missing file is an empty store.
func OpenFile(path string) (*File, error) {
	f := &File{Path: path}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadBoolState implements downlink.ConfigStore. The file is re-read so
// external edits are honoured.
func (f *File) ReadBoolState(key string, def bool) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.loadLocked(); err != nil {
		return def, err
	}
	if v, ok := f.flags[key]; ok {
		return v, nil
	}
	return def, nil
}

// WriteBoolState implements downlink.ConfigStore.
func (f *File) WriteBoolState(key string, val bool) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if cur, ok := f.flags[key]; ok && cur == val {
		return nil
	}
	if f.flags == nil {
		f.flags = make(map[string]bool)
	}
	f.flags[key] = val
	return f.saveLocked()
}

func (f *File) load() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.loadLocked()
}

func (f *File) loadLocked() error {
	data, err := ioutil.ReadFile(f.Path)
	if os.IsNotExist(err) {
		if f.flags == nil {
			f.flags = make(map[string]bool)
		}
		return nil
	}
	if err != nil {
		return err
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	if doc.Flags == nil {
		doc.Flags = make(map[string]bool)
	}
	f.flags = doc.Flags
	return nil
}

func (f *File) saveLocked() error {
	data, err := yaml.Marshal(&fileDoc{Flags: f.flags})
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return err
	}
	glog.V(2).Infof("nvstore: saved %s", f.Path)
	return nil
}
