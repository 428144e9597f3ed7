package progression

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// stateVersion is bumped when a state document schema changes. Load
	// can use it to apply migrations in the future.
	stateVersion = 1

	appDirName = "learnsmart"
)

// Store persists each engine's state as a single named JSON document
// (e.g. xp.json, streak.json) in one directory. Documents are loaded once
// at startup and rewritten wholesale on save.
type Store struct {
	dir string
}

// NewStore creates a Store that reads/writes state documents in the given
// directory. The directory is created (with parents) on the first Save if
// it does not exist. Pass an empty string to use the default XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir}
}

// Dir returns the directory holding the state documents.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of the named state document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the named document into v. It returns false with a nil error
// when the document does not exist yet; v is left untouched so the caller's
// defaults survive.
func (s *Store) Load(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s state: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s state: %w", name, err)
	}
	return true, nil
}

// Save writes the named document using an atomic temp-file-then-rename
// pattern. The directory is created if it does not already exist.
func (s *Store) Save(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s state: %w", name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		return fmt.Errorf("renaming %s state: %w", name, err)
	}
	committed = true

	return nil
}

// defaultStateDir returns ~/.local/state/learnsmart, respecting
// XDG_STATE_HOME if set.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
