// Package manifest records what each successful run produced.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MaxRuns caps how many runs the manifest keeps, newest last.
const MaxRuns = 50

// Manifest is the on-disk run history plus the latest state of each artifact.
type Manifest struct {
	Artifacts []Artifact `yaml:"artifacts"`
	Runs      []Run      `yaml:"runs"`
}

// Run describes one invocation.
type Run struct {
	ID            string    `yaml:"id"`
	Command       string    `yaml:"command"`
	StartedAt     time.Time `yaml:"started_at"`
	FinishedAt    time.Time `yaml:"finished_at"`
	CensusYear    int       `yaml:"census_year"`
	Jurisdictions []string  `yaml:"jurisdictions"`
	Artifacts     []string  `yaml:"artifacts"`
}

// Artifact describes one produced output, possibly spread over several files.
type Artifact struct {
	Name      string    `yaml:"name"`
	Path      string    `yaml:"path"`
	Rows      int       `yaml:"rows"`
	Files     []File    `yaml:"files"`
	RunID     string    `yaml:"run_id"`
	WrittenAt time.Time `yaml:"written_at"`
}

// File is one file on disk belonging to an artifact.
type File struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// NewRun starts a run record with a fresh id.
func NewRun(command string, year int, jurisdictions []string) Run {
	return Run{
		ID:            uuid.NewString(),
		Command:       command,
		StartedAt:     time.Now().UTC(),
		CensusYear:    year,
		Jurisdictions: append([]string(nil), jurisdictions...),
	}
}

// Load reads the manifest at path. A missing file yields an empty manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}
	return &m, nil
}

// Describe hashes files and returns an artifact entry for them. The first
// file is the artifact's primary path.
func Describe(name string, rows int, files ...string) (Artifact, error) {
	if len(files) == 0 {
		return Artifact{}, eris.Errorf("manifest: artifact %s has no files", name)
	}
	a := Artifact{Name: name, Path: files[0], Rows: rows}
	for _, p := range files {
		f, err := describeFile(p)
		if err != nil {
			return Artifact{}, err
		}
		a.Files = append(a.Files, f)
	}
	return a, nil
}

func describeFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, eris.Wrapf(err, "manifest: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	h := sha256.New()
	n, err := io.Copy(h, fh)
	if err != nil {
		return File{}, eris.Wrapf(err, "manifest: hash %s", path)
	}
	return File{Path: path, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Record finishes run, attaches artifacts to it, and appends it. Artifacts
// replace earlier entries with the same name.
func (m *Manifest) Record(run Run, artifacts ...Artifact) {
	run.FinishedAt = time.Now().UTC()
	for _, a := range artifacts {
		a.RunID = run.ID
		a.WrittenAt = run.FinishedAt
		run.Artifacts = append(run.Artifacts, a.Name)
		m.upsert(a)
	}
	m.Runs = append(m.Runs, run)
	if len(m.Runs) > MaxRuns {
		m.Runs = append([]Run(nil), m.Runs[len(m.Runs)-MaxRuns:]...)
	}
}

func (m *Manifest) upsert(a Artifact) {
	for i := range m.Artifacts {
		if m.Artifacts[i].Name == a.Name {
			m.Artifacts[i] = a
			return
		}
	}
	m.Artifacts = append(m.Artifacts, a)
	sort.Slice(m.Artifacts, func(i, j int) bool { return m.Artifacts[i].Name < m.Artifacts[j].Name })
}

// Artifact returns the latest entry named name.
func (m *Manifest) Artifact(name string) (Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Save writes the manifest to path through a temp file and rename.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "manifest: encode")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "manifest: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.yaml")
	if err != nil {
		return eris.Wrap(err, "manifest: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "manifest: write")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "manifest: close")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "manifest: rename to %s", path)
	}
	return nil
}
