package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/reusee/tainb/kernels"
	"go.starlark.net/starlark"
)

const (
	sessionSuffix    = ".session"
	checkpointSuffix = ".checkpoint"
	checkpointDir    = "checkpoints"
)

type Store struct {
	dir        string
	serializer Serializer
	logger     *slog.Logger
	now        func() time.Time
}

func New(dir string, serializer Serializer, logger *slog.Logger) *Store {
	if serializer == nil {
		serializer = Codec{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		dir:        dir,
		serializer: serializer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Target selects where Save writes. Path wins over Name; with neither a
// timestamped name is generated.
type Target struct {
	Path string
	Name string
}

type RestoreInfo struct {
	Restored []string
	Skipped  []string
	SavedAt  time.Time
}

type Summary struct {
	Name     string
	Path     string
	SavedAt  time.Time
	Sequence int
	Bindings int
	Skipped  []string
	Error    error
}

func (s *Store) resolve(target Target) string {
	if target.Path != "" {
		return target.Path
	}
	name := target.Name
	if name == "" {
		name = "session_" + s.now().Format("20060102_150405.000")
	}
	return filepath.Join(s.dir, name+sessionSuffix)
}

// Save writes every serializable binding of k and returns the location written.
func (s *Store) Save(k Kernel, target Target) (string, error) {
	path := s.resolve(target)
	if err := s.write(k, path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) write(k Kernel, path string) error {
	bindings := k.BindingsSnapshot()
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	env := &envelope{
		Version:  blobVersion,
		Bindings: make(map[string][]byte, len(bindings)),
		Sequence: k.Sequence(),
		SavedAt:  s.now(),
	}
	for _, name := range names {
		data, err := s.serializer.Encode(k, bindings[name])
		if err != nil {
			s.logger.Debug("skip binding",
				"name", name,
				"error", err,
			)
			env.Skipped = append(env.Skipped, name)
			continue
		}
		env.Bindings[name] = data
	}

	for _, entry := range k.History() {
		record, err := json.Marshal(entry.Record)
		if err != nil {
			return fmt.Errorf("encode history %d: %w", entry.Sequence, err)
		}
		env.History = append(env.History, storedEntry{
			Sequence: entry.Sequence,
			Fragment: entry.Fragment,
			Record:   record,
		})
	}

	if err := writeBlob(path, env); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	s.logger.Info("snapshot saved",
		"path", path,
		"bindings", len(env.Bindings),
		"skipped", len(env.Skipped),
	)
	return nil
}

// Load merges the snapshot at path into k and replaces its sequence and history.
func (s *Store) Load(k Kernel, path string) (*RestoreInfo, error) {
	env, err := readBlob(path)
	if err != nil {
		return nil, err
	}
	return s.restore(k, env)
}

func (s *Store) restore(k Kernel, env *envelope) (*RestoreInfo, error) {
	history := make([]kernels.HistoryEntry, 0, len(env.History))
	for _, stored := range env.History {
		record := new(kernels.ExecutionRecord)
		if err := json.Unmarshal(stored.Record, record); err != nil {
			return nil, fmt.Errorf("decode history %d: %w", stored.Sequence, err)
		}
		history = append(history, kernels.HistoryEntry{
			Sequence: stored.Sequence,
			Fragment: stored.Fragment,
			Record:   record,
		})
	}

	info := &RestoreInfo{
		Skipped: slices.Clone(env.Skipped),
		SavedAt: env.SavedAt,
	}

	// later bindings may depend on earlier ones, e.g. default parameter values
	pending := make([]string, 0, len(env.Bindings))
	for name := range env.Bindings {
		pending = append(pending, name)
	}
	sort.Strings(pending)
	errs := make(map[string]error)
	for len(pending) > 0 {
		var next []string
		for _, name := range pending {
			value, err := s.serializer.Decode(k, env.Bindings[name])
			if err == nil {
				err = k.SetBinding(name, value)
			}
			if err != nil {
				errs[name] = err
				next = append(next, name)
				continue
			}
			delete(errs, name)
			info.Restored = append(info.Restored, name)
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	for name, err := range errs {
		s.logger.Warn("binding not restored",
			"name", name,
			"error", err,
		)
		info.Skipped = append(info.Skipped, name)
	}
	sort.Strings(info.Restored)
	sort.Strings(info.Skipped)

	k.RestoreState(env.Sequence, history)
	return info, nil
}

// List returns the snapshots in the store directory, most recent first.
// Unreadable snapshots are listed with Error set.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ret []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionSuffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		summary := Summary{
			Name: strings.TrimSuffix(entry.Name(), sessionSuffix),
			Path: path,
		}
		env, err := readBlob(path)
		if err != nil {
			summary.Error = err
			if info, err := entry.Info(); err == nil {
				summary.SavedAt = info.ModTime()
			}
		} else {
			summary.SavedAt = env.SavedAt
			summary.Sequence = env.Sequence
			summary.Bindings = len(env.Bindings)
			summary.Skipped = env.Skipped
		}
		ret = append(ret, summary)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].SavedAt.After(ret[j].SavedAt)
	})
	return ret, nil
}

// Delete removes the snapshot at path.
func (s *Store) Delete(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return false, err
	}
	s.logger.Info("snapshot deleted", "path", path)
	return true, nil
}

// CheckpointPath is the single checkpoint location for a resource.
func (s *Store) CheckpointPath(resource string) string {
	base := filepath.Base(resource)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.dir, checkpointDir, stem+checkpointSuffix)
}

func (s *Store) SaveCheckpoint(k Kernel, resource string) (string, error) {
	return s.Save(k, Target{
		Path: s.CheckpointPath(resource),
	})
}

// LoadCheckpoint restores the checkpoint of resource, returning nil when there is none.
func (s *Store) LoadCheckpoint(k Kernel, resource string) (*RestoreInfo, error) {
	info, err := s.Load(k, s.CheckpointPath(resource))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return info, err
}

// Restorable reports whether value survives a round trip through the serializer.
func (s *Store) Restorable(k Kernel, value starlark.Value) bool {
	_, err := s.serializer.Encode(k, value)
	return err == nil
}
