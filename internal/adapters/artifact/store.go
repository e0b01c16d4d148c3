// Package artifact persists trained models as versioned files.
//
// Every artifact is a JSON Bundle: a small header (format, model name,
// version, training run id, creation time, payload checksum) followed by the
// model payload. File names encode the model name and its semantic version:
//
//	<models_dir>/<model>_v<major>.<minor>.<patch>.json
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/okian/petroenergy/internal/domain/model"
)

// FormatVersion identifies the Bundle layout written by this package.
const FormatVersion = 1

const (
	fileExt      = ".json"
	dirPerm      = 0o755
	artifactPerm = 0o644
)

var nameRe = regexp.MustCompile(`^(.+)_v([^_]+)\.json$`)

// Bundle is the on-disk representation of a trained model.
type Bundle struct {
	Format    int             `json:"format"`
	Model     string          `json:"model"`
	Version   string          `json:"version"`
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Checksum  string          `json:"checksum"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (b *Bundle) Decode(v any) error {
	if err := json.Unmarshal(b.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %w", model.ErrModelLoad, b.Model, err)
	}
	return nil
}

// Entry describes an artifact found in the models directory.
type Entry struct {
	Model   string
	Version string
	Path    string
}

// Store reads and writes artifacts under a single directory.
type Store struct {
	dir   string
	now   func() time.Time
	runID func() string
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp new bundles.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs overrides the generator for training run ids.
func WithRunIDs(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.runID = next
		}
	}
}

// NewStore opens dir as an artifact store, creating it when missing.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create models dir %s: %w", dir, err)
	}
	s := &Store{
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
		runID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Path returns the artifact path for a model at a given version.
func (s *Store) Path(modelName, version string) string {
	return filepath.Join(s.dir, FileName(modelName, version))
}

// FileName builds the artifact file name for a model version.
func FileName(modelName, version string) string {
	return fmt.Sprintf("%s_v%s%s", modelName, version, fileExt)
}

// ParseName splits an artifact file name into model name and version.
func ParseName(name string) (string, string, bool) {
	m := nameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil || !ValidVersion(m[2]) {
		return "", "", false
	}
	return m[1], m[2], true
}

// ValidVersion reports whether v is a strict major.minor.patch version
// without pre-release or build metadata.
func ValidVersion(v string) bool {
	sv, err := semver.StrictNewVersion(v)
	return err == nil && sv.Prerelease() == "" && sv.Metadata() == ""
}

// Exists reports whether an artifact file is present at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Write encodes payload and stores it as the artifact for modelName at
// version, replacing any previous file. The write is not atomic; readers
// detect torn files through the checksum.
func (s *Store) Write(_ context.Context, modelName, version string, payload any) (string, error) {
	if !ValidVersion(version) {
		return "", fmt.Errorf("%w: %q", ErrBadVersion, version)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", modelName, err)
	}
	b := Bundle{
		Format:    FormatVersion,
		Model:     modelName,
		Version:   version,
		RunID:     s.runID(),
		CreatedAt: s.now(),
		Checksum:  checksum(raw),
		Payload:   raw,
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode %s bundle: %w", modelName, err)
	}
	path := s.Path(modelName, version)
	if err := os.WriteFile(path, data, artifactPerm); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Read loads and verifies the bundle at path. Every failure wraps
// model.ErrModelLoad.
func (s *Store) Read(_ context.Context, path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrModelLoad, path, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", model.ErrModelLoad, path, err)
	}
	if b.Format != FormatVersion {
		return nil, fmt.Errorf("%w: %s has unsupported format %d", model.ErrModelLoad, path, b.Format)
	}
	if len(b.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s has no payload", model.ErrModelLoad, path)
	}
	if checksum(b.Payload) != b.Checksum {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrModelLoad, path, ErrChecksum)
	}
	return &b, nil
}

// List returns every artifact in the directory, grouped by model with the
// newest version first. Files that do not follow the naming scheme are ignored.
func (s *Store) List(_ context.Context) ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var entries []Entry
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		name, version, ok := ParseName(f.Name())
		if !ok {
			continue
		}
		entries = append(entries, Entry{Model: name, Version: version, Path: filepath.Join(s.dir, f.Name())})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Model != entries[j].Model {
			return entries[i].Model < entries[j].Model
		}
		return CompareVersions(entries[i].Version, entries[j].Version) > 0
	})
	return entries, nil
}

// Remove deletes the artifact at path.
func (s *Store) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// CompareVersions orders two semantic versions. Unparsable versions sort
// before parsable ones and compare equal to each other.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
