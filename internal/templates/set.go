package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Set is a collection of templates iterated in name order.
type Set struct {
	byName  map[string]*Template
	ordered []*Template
}

// NewSet builds a set. A later template replaces an earlier one of the same name.
func NewSet(ts ...*Template) *Set {
	s := &Set{byName: make(map[string]*Template)}
	for _, t := range ts {
		s.byName[strings.ToLower(t.Name)] = t
	}
	for _, t := range s.byName {
		s.ordered = append(s.ordered, t)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		return s.ordered[i].Name < s.ordered[j].Name
	})
	return s
}

// Builtin returns the templates shipped with the binary.
func Builtin() (*Set, error) {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	ts, err := loadFS(sub)
	if err != nil {
		return nil, err
	}
	return NewSet(ts...), nil
}

// Load returns the built-in templates overlaid with those in dir, if dir is set.
func Load(dir string) (*Set, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return builtin, nil
	}
	extra, err := loadFS(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	return NewSet(append(builtin.All(), extra...)...), nil
}

// LoadDir reads every .json, .yaml and .yml file in dir. The file name is the
// template name unless the file declares one.
func LoadDir(dir string) (*Set, error) {
	ts, err := loadFS(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	return NewSet(ts...), nil
}

func loadFS(fsys fs.FS) ([]*Template, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}
	var out []*Template
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, &models.TemplateError{Name: e.Name(), Err: err}
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		t, err := Parse(name, ext, data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Parse decodes and compiles one template document. ext selects JSON or YAML.
func Parse(name, ext string, data []byte) (*Template, error) {
	var bt BankTemplate
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &bt)
	default:
		err = yaml.Unmarshal(data, &bt)
	}
	if err != nil {
		return nil, &models.TemplateError{Name: name, Err: err}
	}
	if bt.Name == "" {
		bt.Name = name
	}
	return Compile(bt)
}

// Detect returns the first template, by name, whose identifiers occur in text.
func (s *Set) Detect(text string) *Template {
	if s == nil {
		return nil
	}
	for _, t := range s.ordered {
		if t.Matches(text) {
			return t
		}
	}
	return nil
}

// Get looks a template up by name, ignoring case.
func (s *Set) Get(name string) (*Template, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[strings.ToLower(name)]
	return t, ok
}

// All returns the templates in detection order.
func (s *Set) All() []*Template {
	if s == nil {
		return nil
	}
	return append([]*Template(nil), s.ordered...)
}

// Len is the number of templates.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}
