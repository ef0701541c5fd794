// Package store provides SessionStore implementations: an in-memory
// store for tests and ephemeral processes, and a file-backed store that
// survives restarts.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Memory holds the token in process memory only.
type Memory struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the current token, false when unset.
func (m *Memory) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set
}

// Set replaces the current token.
func (m *Memory) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

// Clear removes the token. Idempotent.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}

type filePayload struct {
	Token string `json:"token"`
}

// File persists the token as a small JSON document at a caller-supplied
// path. Writes are atomic (temp file + rename) and the file is created
// 0600 since it holds a bearer credential.
type File struct {
	mu    sync.Mutex
	path  string
	token string
	set   bool
}

// NewFile loads any previously persisted token from path. A missing file
// is not an error; it simply means unauthenticated.
func NewFile(path string) (*File, error) {
	f := &File{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read session file")
	}

	var payload filePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode session file")
	}
	if payload.Token != "" {
		f.token = payload.Token
		f.set = true
	}

	return f, nil
}

// Get returns the current token, false when unset.
func (f *File) Get() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.set
}

// Set persists the token to disk before updating the in-memory copy.
func (f *File) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.write(filePayload{Token: token}); err != nil {
		return err
	}

	f.token = token
	f.set = true
	return nil
}

// Clear removes the persisted token. Idempotent.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to remove session file")
	}

	f.token = ""
	f.set = false
	return nil
}

func (f *File) write(payload filePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session file")
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to stage session file")
	}

	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write session file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to flush session file")
	}

	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to restrict session file")
	}

	if err := os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to replace session file")
	}

	return nil
}
