package prep

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// staging holds artifacts in a hidden directory next to their destinations
// until every one of them has been written. Each destination stem gets its own
// slot, so files sharing a base name never overwrite each other while a
// shapefile's parts stay together.
type staging struct {
	dir   string
	slots map[string]string
}

func newStaging(base string) (*staging, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, eris.Wrapf(err, "prep: create output directory %s", base)
	}
	dir, err := os.MkdirTemp(base, ".staging-*")
	if err != nil {
		return nil, eris.Wrap(err, "prep: create staging directory")
	}
	return &staging{dir: dir, slots: make(map[string]string)}, nil
}

// path is the staged location of dst.
func (s *staging) path(dst string) (string, error) {
	clean := filepath.Clean(dst)
	stem := strings.TrimSuffix(clean, filepath.Ext(clean))
	slot, ok := s.slots[stem]
	if !ok {
		slot = filepath.Join(s.dir, strconv.Itoa(len(s.slots)))
		if err := os.Mkdir(slot, 0o755); err != nil {
			return "", eris.Wrapf(err, "prep: stage %s", dst)
		}
		s.slots[stem] = slot
	}
	return filepath.Join(slot, filepath.Base(clean)), nil
}

// write stages dst with the output of fn.
func (s *staging) write(dst string, fn func(io.Writer) error) error {
	p, err := s.path(dst)
	if err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return eris.Wrapf(err, "prep: stage %s", dst)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "prep: close staged %s", dst)
}

// commit moves every staged file into place. All staged files are checked
// before the first rename.
func (s *staging) commit(dsts ...string) error {
	staged := make([]string, len(dsts))
	for i, dst := range dsts {
		p, err := s.path(dst)
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err != nil {
			return eris.Wrapf(err, "prep: %s was not staged", dst)
		}
		staged[i] = p
	}
	for i, dst := range dsts {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return eris.Wrapf(err, "prep: create %s", filepath.Dir(dst))
		}
		if err := os.Rename(staged[i], dst); err != nil {
			return eris.Wrapf(err, "prep: commit %s", dst)
		}
	}
	return nil
}

func (s *staging) cleanup() {
	_ = os.RemoveAll(s.dir)
}
