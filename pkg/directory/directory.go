package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BillK181/wedding-website/pkg/domain"
)

var ErrDuplicateName = errors.New("duplicate guest name")

// Directory is the read-only allow-list of canonical guest names.
type Directory struct {
	names []string
	index map[string]string // normalized -> canonical
}

// New builds a directory from canonical names. Blank entries are skipped and
// names that collide case-insensitively are rejected.
func New(names []string) (*Directory, error) {
	d := &Directory{index: make(map[string]string, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		key := domain.NormalizeName(name)
		if existing, ok := d.index[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateName, existing, name)
		}
		d.index[key] = name
		d.names = append(d.names, name)
	}
	return d, nil
}

type guestFile struct {
	Guests []string `yaml:"guests"`
}

// Load reads a YAML guest list of the form `guests: [..]`.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guest list: %w", err)
	}
	var file guestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse guest list: %w", err)
	}
	return New(file.Guests)
}

// Contains reports whether name is on the list, ignoring case and surrounding space.
func (d *Directory) Contains(name string) bool {
	_, ok := d.Canonicalize(name)
	return ok
}

// Canonicalize returns the stored spelling for name.
func (d *Directory) Canonicalize(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	canonical, ok := d.index[domain.NormalizeName(name)]
	return canonical, ok
}

// Names returns the canonical names sorted alphabetically.
func (d *Directory) Names() []string {
	if d == nil {
		return nil
	}
	out := append([]string(nil), d.names...)
	sort.Strings(out)
	return out
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}
