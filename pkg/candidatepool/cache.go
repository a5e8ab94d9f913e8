package candidatepool

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("candidatepool: create cache dir %q: %w", dir, err)
	}
	return nil
}

func (p *Pool) cachePath(name string) string {
	return filepath.Join(p.cfg.CacheDir, name)
}

// writeCacheFile stores rawEntries (the upstream feed's raw JSON array, left
// undecoded) alongside fetched_at/source_type. sjson builds the wrapper
// object key-by-key so the upstream payload never has to round-trip through
// a Go struct — entries whose shape we don't fully model still survive
// intact on disk (§6 cache schema).
func writeCacheFile(path string, rawEntries []byte, fetchedAt time.Time) error {
	doc := []byte(`{}`)
	var err error
	doc, err = sjson.SetBytes(doc, "fetched_at", fetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("candidatepool: set fetched_at: %w", err)
	}
	doc, err = sjson.SetBytes(doc, "source_type", "api")
	if err != nil {
		return fmt.Errorf("candidatepool: set source_type: %w", err)
	}
	doc, err = sjson.SetRawBytes(doc, "entries", rawEntries)
	if err != nil {
		return fmt.Errorf("candidatepool: set entries: %w", err)
	}
	return writeFileAtomic(path, doc, 0o644)
}

// readCacheFile returns the cache's fetched_at and the raw entries array,
// tolerant of any extra fields the upstream shape carries.
func readCacheFile(path string) (time.Time, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, nil, err
	}
	parsed := gjson.ParseBytes(data)
	fetchedAt, _ := time.Parse(time.RFC3339, parsed.Get("fetched_at").String())
	return fetchedAt, []byte(parsed.Get("entries").Raw), nil
}

// writeFileAtomic writes data to a temp file in dir's own directory, then
// renames it into place, matching the crash-safety discipline used for the
// decision log (pkg/journal writeFileAtomic) — duplicated here rather than
// exported across packages since it is a three-line os/filepath idiom, not a
// shared abstraction worth a new dependency edge.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-candidatepool-*")
	if err != nil {
		return fmt.Errorf("candidatepool: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("candidatepool: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("candidatepool: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("candidatepool: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("candidatepool: rename temp file: %w", err)
	}
	return nil
}
