package sessions

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
)

const blobVersion = 1

type envelope struct {
	Version  int
	Bindings map[string][]byte
	Sequence int
	History  []storedEntry
	SavedAt  time.Time
	Skipped  []string
}

type storedEntry struct {
	Sequence int
	Fragment string
	Record   []byte
}

func writeBlob(path string, env *envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := snappy.NewBufferedWriter(f)
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readBlob(path string) (*envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()
	return decodeBlob(f)
}

func decodeBlob(r io.Reader) (*envelope, error) {
	var env envelope
	if err := gob.NewDecoder(snappy.NewReader(r)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != blobVersion {
		return nil, fmt.Errorf("unknown snapshot version %d", env.Version)
	}
	return &env, nil
}
