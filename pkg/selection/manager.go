package selection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treescope/treescope/internal/fileutil"
	"github.com/treescope/treescope/pkg/target"
)

// Mutation errors.
var (
	ErrUnknownProject   = errors.New("project not found in catalog")
	ErrMandatoryProject = errors.New("mandatory projects are always selected and cannot be added or removed")
)

// Action is a selection mutation verb.
type Action int

const (
	Add Action = iota
	Remove
)

// PersistedSelection is the on-disk form of a selection: project names and
// target strings, re-hydrated against the current catalog at load time.
type PersistedSelection struct {
	Projects []string `json:"projects"`
	Targets  []string `json:"targets"`
}

// Selection is the in-memory, hydrated form.
type Selection struct {
	Projects []Project
	Targets  target.Set
}

// TargetSet flattens the selection: every selected project's targets plus
// the individually selected targets.
func (s Selection) TargetSet() (target.Set, error) {
	set := target.NewSet()
	set.Extend(s.Targets)
	for _, p := range s.Projects {
		ts, err := p.TargetSet()
		if err != nil {
			return nil, err
		}
		set.Extend(ts)
	}
	return set, nil
}

// Manager owns the persisted selection for one repository.
type Manager struct {
	repoRoot      string
	selectionPath string
	catalog       *Catalog
	persisted     PersistedSelection
}

// NewManager loads the catalog and the persisted selection for repoRoot.
// A missing selection file hydrates to the empty selection.
func NewManager(repoRoot string) (*Manager, error) {
	catalog, err := LoadCatalog(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("loading project catalog: %w", err)
	}
	m := &Manager{
		repoRoot:      repoRoot,
		selectionPath: filepath.Join(repoRoot, filepath.FromSlash(SelectionFileRelPath)),
		catalog:       catalog,
	}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Catalog exposes the loaded project catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// SelectionPath returns the path of the persisted selection file.
func (m *Manager) SelectionPath() string { return m.selectionPath }

// Load re-reads the persisted selection from disk.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.selectionPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.persisted = PersistedSelection{}
			return nil
		}
		return fmt.Errorf("reading selection file %s: %w", m.selectionPath, err)
	}
	var p PersistedSelection
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing selection file %s: %w", m.selectionPath, err)
	}
	m.persisted = p
	return nil
}

// Save writes the persisted selection atomically, creating the selection
// directory on first write.
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.selectionPath), 0o755); err != nil {
		return fmt.Errorf("creating selection directory: %w", err)
	}
	sort.Strings(m.persisted.Projects)
	sort.Strings(m.persisted.Targets)
	data, err := json.MarshalIndent(m.persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.AtomicWrite(m.selectionPath, data, 0o644); err != nil {
		return fmt.Errorf("writing selection file: %w", err)
	}
	return nil
}

// NewBackup captures the selection file for restore-on-failure semantics.
func (m *Manager) NewBackup() (*fileutil.BackedUpFile, error) {
	return fileutil.NewBackedUpFile(m.selectionPath)
}

// Mutate applies action to the given project names and target strings.
// It reports whether the persisted form changed. The caller saves.
//
// Each item is first looked up as a project name; anything else must
// parse as a target.
func (m *Manager) Mutate(action Action, items []string) (bool, error) {
	changed := false
	for _, item := range items {
		if project, ok := m.catalog.Find(item); ok {
			if project.Mandatory {
				return changed, fmt.Errorf("project %q: %w", item, ErrMandatoryProject)
			}
			if m.applyString(&m.persisted.Projects, action, project.Name) {
				changed = true
			}
			continue
		}

		t, err := target.Parse(item)
		if err != nil {
			if !strings.Contains(item, ":") {
				return changed, fmt.Errorf("%q is not in the project catalog (%w) and %w", item, ErrUnknownProject, target.ErrNoScheme)
			}
			return changed, err
		}
		if m.applyString(&m.persisted.Targets, action, t.String()) {
			changed = true
		}
	}
	return changed, nil
}

func (m *Manager) applyString(list *[]string, action Action, s string) bool {
	idx := -1
	for i, existing := range *list {
		if existing == s {
			idx = i
			break
		}
	}
	switch action {
	case Add:
		if idx >= 0 {
			return false
		}
		*list = append(*list, s)
		return true
	case Remove:
		if idx < 0 {
			return false
		}
		*list = append((*list)[:idx], (*list)[idx+1:]...)
		return true
	}
	return false
}

// Selection hydrates the persisted selection against the catalog. A
// project name no longer in the catalog fails the whole hydration with
// ErrUnknownProject.
func (m *Manager) Selection() (Selection, error) {
	sel := Selection{Targets: target.NewSet()}
	for _, name := range m.persisted.Projects {
		p, ok := m.catalog.Find(name)
		if !ok {
			return Selection{}, fmt.Errorf("selected project %q: %w", name, ErrUnknownProject)
		}
		sel.Projects = append(sel.Projects, p)
	}
	ts, err := target.ParseSet(m.persisted.Targets)
	if err != nil {
		return Selection{}, fmt.Errorf("hydrating selected targets: %w", err)
	}
	sel.Targets = ts
	return sel, nil
}

// ComputedSelection merges the persisted selection with every mandatory
// project. This is the input to every sync: mandatory projects are present
// regardless of persisted state.
func (m *Manager) ComputedSelection() (Selection, error) {
	sel, err := m.Selection()
	if err != nil {
		return Selection{}, err
	}
	seen := make(map[string]bool, len(sel.Projects))
	for _, p := range sel.Projects {
		seen[p.Name] = true
	}
	for _, p := range m.catalog.MandatoryProjects() {
		if !seen[p.Name] {
			sel.Projects = append(sel.Projects, p)
		}
	}
	return sel, nil
}

// ProjectNames returns the currently selected project names, sorted.
func (m *Manager) ProjectNames() []string {
	out := append([]string(nil), m.persisted.Projects...)
	sort.Strings(out)
	return out
}

// TargetStrings returns the currently selected target strings, sorted.
func (m *Manager) TargetStrings() []string {
	out := append([]string(nil), m.persisted.Targets...)
	sort.Strings(out)
	return out
}
