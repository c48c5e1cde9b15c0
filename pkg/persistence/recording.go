package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/transport"
)

// RecordingStore implements transport.RecordingStore against
// recordings/<session>/turn-<n>.json. Recording assigns files in call
// order (turn-1.json, turn-2.json, ...); Load resolves by fingerprint
// regardless of which turn number produced the match, since playback
// replays by content, not position.
type RecordingStore struct {
	dir string

	mu      sync.Mutex
	nextTag int
	byFP    map[string]transport.Recording
	scanned bool
}

// NewRecordingStore returns a store rooted at sessionDir
// (recordings/<session>), creating it if absent.
func NewRecordingStore(sessionDir string) (*RecordingStore, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: recordings: %w", err)
	}
	return &RecordingStore{dir: sessionDir, byFP: map[string]transport.Recording{}}, nil
}

// Save persists rec under the next sequential turn file.
func (r *RecordingStore) Save(rec transport.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScannedLocked(); err != nil {
		return err
	}
	r.nextTag++
	path := filepath.Join(r.dir, fmt.Sprintf("turn-%d.json", r.nextTag))

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal recording: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("persistence: write %s: %w", path, err)
	}
	r.byFP[rec.Fingerprint] = rec
	return nil
}

// Load resolves fingerprint against every recording in the session
// directory. A stored file whose own fingerprint field no longer matches
// its content's recomputed fingerprint is skipped and reported rather than
// silently trusted, surfacing a recording_mismatch rather than a false
// replay.
func (r *RecordingStore) Load(fingerprint string) (transport.Recording, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScannedLocked(); err != nil {
		return transport.Recording{}, false, err
	}
	rec, ok := r.byFP[fingerprint]
	if !ok {
		return transport.Recording{}, false, nil
	}
	if recomputed := execution.Fingerprint(rec.Model, rec.Conversation, rec.Tools, rec.SystemPrompt); recomputed != rec.Fingerprint {
		return transport.Recording{}, false, fmt.Errorf("persistence: recording_mismatch: stored fingerprint %s does not match recomputed %s", rec.Fingerprint, recomputed)
	}
	return rec, true, nil
}

// ensureScannedLocked lazily indexes every turn-*.json file on first use,
// so Load works against recordings written in a prior process (playback
// mode) without requiring every Save to have happened in this one.
func (r *RecordingStore) ensureScannedLocked() error {
	if r.scanned {
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("persistence: scan recordings: %w", err)
	}
	maxTag := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "turn-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "turn-"), ".json")); err == nil && n > maxTag {
			maxTag = n
		}
		b, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			return fmt.Errorf("persistence: read %s: %w", name, err)
		}
		var rec transport.Recording
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("persistence: parse %s: %w", name, err)
		}
		r.byFP[rec.Fingerprint] = rec
	}
	r.nextTag = maxTag
	r.scanned = true
	return nil
}

// Fingerprints returns every fingerprint currently indexed, sorted, for
// diagnostics. No CLI command calls it.
func (r *RecordingStore) Fingerprints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byFP))
	for fp := range r.byFP {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}
