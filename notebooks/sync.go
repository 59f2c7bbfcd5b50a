package notebooks

import (
	"errors"
	"os"

	"github.com/reusee/tainb/watchers"
)

// Sync pairs a document on disk with a watcher, so that writes by other
// processes can be told apart from our own.
type Sync struct {
	Path     string
	Document *Document
	watcher  *watchers.FileWatcher
}

// Open loads the document at path, or starts a new one named name when the file does not exist.
func Open(path string, name string, watcher *watchers.FileWatcher) (*Sync, error) {
	doc, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		doc = New(name)
	} else if err != nil {
		return nil, err
	}
	watcher.Acknowledge()
	return &Sync{
		Path:     path,
		Document: doc,
		watcher:  watcher,
	}, nil
}

func (s *Sync) Start() {
	s.watcher.Start()
}

func (s *Sync) Stop() {
	s.watcher.Stop()
}

// Changed reports whether another writer modified the file since the last Reload or Save.
func (s *Sync) Changed() bool {
	return s.watcher.HasChanges()
}

// Reload replaces the in-memory document with the file's content.
func (s *Sync) Reload() error {
	doc, err := Load(s.Path)
	if err != nil {
		return err
	}
	s.Document = doc
	s.watcher.Acknowledge()
	return nil
}

// Save writes the in-memory document, overwriting external changes.
func (s *Sync) Save() error {
	if err := s.Document.Save(s.Path); err != nil {
		return err
	}
	s.watcher.Acknowledge()
	return nil
}
