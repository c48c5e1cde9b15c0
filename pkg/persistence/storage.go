package persistence

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/machine"
)

const (
	stateFile    = "state.json"
	metadataFile = "metadata.json"
	machineFile  = "machine.json"
	historyFile  = "history.jsonl"
	lastLink     = "last"
)

// ErrMachineDrift is returned by Load when the machine file on disk no
// longer hashes the same as the snapshot the execution was last saved
// against, and force was not requested.
var ErrMachineDrift = fmt.Errorf("execution: machine file drifted from recorded snapshot")

// Store reads and writes execution records under baseDir/<id>/.
type Store struct {
	baseDir string
}

// NewStore returns a Store rooted at baseDir, creating it if absent.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// hashBytes returns the blake3 content hash used for drift detection,
// chosen over sha256 for its speed on repeated machine-file hashing
// across every save.
func hashBytes(b []byte) string {
	h := blake3.New()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Save writes state.json, metadata.json and machine.json for one
// execution and repoints the `last` symlink at it. machineSource is the
// raw bytes of the machine definition file the execution was started
// from, hashed here and recorded in Metadata.MachineSource for the next
// Load's drift check.
func (s *Store) Save(st *execution.ExecutionState, meta Metadata, machineSourceBytes []byte) error {
	dir := s.dir(meta.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: save %s: %w", meta.ID, err)
	}

	meta.MachineSource = hashBytes(machineSourceBytes)
	meta.Status = statusOf(st)
	meta.TurnCount = st.Metadata.TurnCount
	meta.StepCount = st.Metadata.StepCount
	meta.LastExecutedAt = st.Metadata.LastUpdated

	if err := writeJSON(filepath.Join(dir, stateFile), st); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, machineFile), st.MachineSnapshot); err != nil {
		return err
	}
	return s.relink(meta.ID)
}

func (s *Store) relink(id string) error {
	link := filepath.Join(s.baseDir, lastLink)
	_ = os.Remove(link)
	if err := os.Symlink(s.dir(id), link); err != nil {
		return fmt.Errorf("persistence: relink last: %w", err)
	}
	return nil
}

// Load reads back an execution record, refusing to resume if the machine
// file's current bytes no longer hash to what machine.json was saved
// with — unless force is set, in which case it resumes anyway against the
// (possibly stale) saved snapshot.
func (s *Store) Load(id string, currentMachineSourceBytes []byte, force bool) (*execution.ExecutionState, Metadata, error) {
	dir := s.dir(id)

	var meta Metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		return nil, Metadata{}, err
	}

	if !force && meta.MachineSource != hashBytes(currentMachineSourceBytes) {
		return nil, meta, ErrMachineDrift
	}

	var m machine.Machine
	if err := readJSON(filepath.Join(dir, machineFile), &m); err != nil {
		return nil, meta, err
	}

	var st execution.ExecutionState
	if err := readJSON(filepath.Join(dir, stateFile), &st); err != nil {
		return nil, meta, err
	}
	st.MachineSnapshot = &m

	return &st, meta, nil
}

// AppendHistory appends one closed-turn entry to history.jsonl.
func (s *Store) AppendHistory(id string, entry HistoryEntry) error {
	dir := s.dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, historyFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: append history: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("persistence: marshal history entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("persistence: write history: %w", err)
	}
	return nil
}

// List returns every execution's metadata, sorted by id, for `exec list`.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("persistence: list: %w", err)
	}
	var out []Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta Metadata
		if err := readJSON(filepath.Join(s.dir(e.Name()), metadataFile), &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Remove deletes one execution's record directory.
func (s *Store) Remove(id string) error {
	if err := os.RemoveAll(s.dir(id)); err != nil {
		return fmt.Errorf("persistence: remove %s: %w", id, err)
	}
	return nil
}

// Clean removes every execution record whose id matches pattern (a
// doublestar glob, e.g. "2026-01-*") and returns the ids it removed.
func (s *Store) Clean(pattern string) ([]string, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, meta := range metas {
		ok, err := doublestar.Match(pattern, meta.ID)
		if err != nil {
			return removed, fmt.Errorf("persistence: bad pattern %q: %w", pattern, err)
		}
		if !ok {
			continue
		}
		if err := s.Remove(meta.ID); err != nil {
			return removed, err
		}
		removed = append(removed, meta.ID)
	}
	return removed, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("persistence: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("persistence: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("persistence: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
