package state

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gofrs/uuid"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/types/partitions"
	"github.com/twpayne/go-vfs/v4"
	"gopkg.in/yaml.v3"
)

var (
	ErrSystemNotFound = errors.New("system not found")
	ErrDiskNotFound   = errors.New("disk not found")
	ErrDiskExists     = errors.New("disk already defined")
)

// System is the shared record of one system build. Disks are written by the
// disk and partition steps, the filesystem tables by the filesystem step.
// A nil Filesystem means no filesystem was created yet.
type System struct {
	Name           string                                 `yaml:"name" json:"name"`
	BuildID        string                                 `yaml:"build-id" json:"build-id"`
	Disks          map[string]*partitions.Disk            `yaml:"disks,omitempty" json:"disks,omitempty"`
	Filesystem     map[string]partitions.FilesystemRecord `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	FilesystemInfo map[string]partitions.FilesystemInfo   `yaml:"filesystem-info,omitempty" json:"filesystem-info,omitempty"`
}

// Context carries every system of a build between steps. It is not safe for
// concurrent use; a build step owns it while it runs.
type Context struct {
	Systems map[string]*System `yaml:"systems" json:"systems"`
}

func NewContext() *Context {
	return &Context{Systems: map[string]*System{}}
}

// Load reads the context persisted at path. A missing file is an empty context.
func Load(fsys vfs.FS, path string) (*Context, error) {
	c := NewContext()
	dat, err := fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(dat, c); err != nil {
		return nil, fmt.Errorf("parsing build state %s: %w", path, err)
	}
	if c.Systems == nil {
		c.Systems = map[string]*System{}
	}
	for name, s := range c.Systems {
		if s == nil {
			s = &System{}
			c.Systems[name] = s
		}
		s.Name = name
		for dname, d := range s.Disks {
			if d == nil {
				continue
			}
			d.Name = dname
			d.Relink()
		}
	}
	return c, nil
}

func (c *Context) Save(fsys vfs.FS, path string) error {
	if err := vfs.MkdirAll(fsys, filepath.Dir(path), constants.DirPerm); err != nil {
		return err
	}
	dat, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return fsys.WriteFile(path, dat, constants.FilePerm)
}

func (c *Context) System(name string) (*System, error) {
	s, ok := c.Systems[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	return s, nil
}

// AddSystem returns the named system, creating it with a fresh build id when missing.
func (c *Context) AddSystem(name string) (*System, error) {
	if s, ok := c.Systems[name]; ok {
		return s, nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	s := &System{Name: name, BuildID: id.String(), Disks: map[string]*partitions.Disk{}}
	c.Systems[name] = s
	return s, nil
}

func (c *Context) SystemNames() []string {
	names := make([]string, 0, len(c.Systems))
	for n := range c.Systems {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *System) Disk(name string) (*partitions.Disk, error) {
	d, ok := s.Disks[name]
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: %s in system %s", ErrDiskNotFound, name, s.Name)
	}
	return d, nil
}

// AddDisk registers a disk produced by the provisioning step.
func (s *System) AddDisk(d *partitions.Disk) error {
	if s.Disks == nil {
		s.Disks = map[string]*partitions.Disk{}
	}
	if _, ok := s.Disks[d.Name]; ok {
		return fmt.Errorf("%w: %s in system %s", ErrDiskExists, d.Name, s.Name)
	}
	s.Disks[d.Name] = d
	return nil
}

func (s *System) DiskNames() []string {
	names := make([]string, 0, len(s.Disks))
	for n := range s.Disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
