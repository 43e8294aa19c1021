// Package selection manages the user's chosen projects and targets: the
// on-disk project catalog, the persisted selection, and the mutation and
// merge rules that feed every sync.
package selection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treescope/treescope/pkg/target"
)

// Catalog locations inside a focused repository. Optional projects are
// curated under focus/projects/; mandatory projects live directly under
// focus/ and are always part of the computed selection.
const (
	CatalogDirName          = "focus"
	OptionalProjectsSubdir  = "projects"
	ProjectFileSuffix       = ".projects.json"
	SelectionFileRelPath    = ".focus/user.selection.json"
	OutliningBazelrcRelPath = "focus/outlining.bazelrc"
)

// Project is a named, human-curated aggregate of targets.
type Project struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Mandatory   bool     `json:"mandatory,omitempty"`
	Targets     []string `json:"targets"`
}

// TargetSet parses the project's target strings.
func (p Project) TargetSet() (target.Set, error) {
	set, err := target.ParseSet(p.Targets)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", p.Name, err)
	}
	return set, nil
}

// projectFile is the JSON document shape of a *.projects.json file.
type projectFile struct {
	Projects []Project `json:"projects"`
}

// Catalog is the merged set of project definitions loaded from a
// repository. Projects are immutable once loaded within a sync.
type Catalog struct {
	Optional  map[string]Project
	Mandatory map[string]Project

	// definedIn records the file that defined each name, for duplicate
	// diagnostics.
	definedIn map[string]string
}

// LoadCatalog reads every project file under the repository root. A
// project name defined by two files is an error naming both.
func LoadCatalog(repoRoot string) (*Catalog, error) {
	c := &Catalog{
		Optional:  make(map[string]Project),
		Mandatory: make(map[string]Project),
		definedIn: make(map[string]string),
	}

	optionalDir := filepath.Join(repoRoot, CatalogDirName, OptionalProjectsSubdir)
	if err := c.loadDir(optionalDir, false); err != nil {
		return nil, err
	}
	mandatoryDir := filepath.Join(repoRoot, CatalogDirName)
	if err := c.loadDir(mandatoryDir, true); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) loadDir(dir string, mandatory bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading project directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ProjectFileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := c.loadFile(path, mandatory); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) loadFile(path string, mandatoryDir bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading project file %s: %w", path, err)
	}
	var file projectFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing project file %s: %w", path, err)
	}

	for _, p := range file.Projects {
		if p.Name == "" {
			return fmt.Errorf("project file %s: project with empty name", path)
		}
		if prior, ok := c.definedIn[p.Name]; ok {
			return fmt.Errorf("project %q defined in both %s and %s", p.Name, prior, path)
		}
		c.definedIn[p.Name] = path

		if mandatoryDir || p.Mandatory {
			p.Mandatory = true
			c.Mandatory[p.Name] = p
		} else {
			c.Optional[p.Name] = p
		}
	}
	return nil
}

// Find looks a project up by name in either part of the catalog.
func (c *Catalog) Find(name string) (Project, bool) {
	if p, ok := c.Optional[name]; ok {
		return p, true
	}
	p, ok := c.Mandatory[name]
	return p, ok
}

// OptionalNames returns the sorted names of the optional projects.
func (c *Catalog) OptionalNames() []string {
	names := make([]string, 0, len(c.Optional))
	for name := range c.Optional {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MandatoryProjects returns the mandatory projects sorted by name.
func (c *Catalog) MandatoryProjects() []Project {
	names := make([]string, 0, len(c.Mandatory))
	for name := range c.Mandatory {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Project, 0, len(names))
	for _, n := range names {
		out = append(out, c.Mandatory[n])
	}
	return out
}
