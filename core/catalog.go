package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Catalog is the output of one discovery pass: ordered entries, the classes they
// belong to, the files that were skipped and the runtimes able to invoke them.
type Catalog struct {
	Root     string             `json:"root"`
	Entries  []Entry            `json:"entries"`
	Classes  []*ClassDescriptor `json:"classes"`
	Warnings []ParseWarning     `json:"warnings,omitempty"`

	byID     map[string]int
	classes  map[string]*ClassDescriptor
	runtimes map[string]Runtime
}

func NewCatalog(root string) *Catalog {
	return &Catalog{
		Root:     root,
		byID:     make(map[string]int),
		classes:  make(map[string]*ClassDescriptor),
		runtimes: make(map[string]Runtime),
	}
}

// Add appends one module's result. Entries already present keep their first position.
func (c *Catalog) Add(res ModuleResult) {
	for _, cls := range res.Classes {
		if _, ok := c.classes[cls.Key()]; ok {
			continue
		}
		c.classes[cls.Key()] = cls
		c.Classes = append(c.Classes, cls)
	}
	for _, e := range res.Entries {
		id := e.Signature.ID()
		if _, ok := c.byID[id]; ok {
			continue
		}
		c.byID[id] = len(c.Entries)
		c.Entries = append(c.Entries, e)
	}
	c.Warnings = append(c.Warnings, res.Warnings...)
}

// SetRuntime registers the runtime for callables of a language.
func (c *Catalog) SetRuntime(language string, rt Runtime) {
	c.runtimes[language] = rt
}

// Runtime returns the runtime registered for language.
func (c *Catalog) Runtime(language string) (Runtime, error) {
	rt, ok := c.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRuntime, language)
	}
	return rt, nil
}

// Lookup finds an entry by callable id ("module::Qualified.Name").
func (c *Catalog) Lookup(id string) (Entry, error) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownCallable, id)
	}
	return c.Entries[i], nil
}

// Find resolves a reviewer-supplied key: an exact id, a 1-based index into the
// ordered entries, or an unambiguous qualified name.
func (c *Catalog) Find(key string) (Entry, error) {
	if e, err := c.Lookup(key); err == nil {
		return e, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		if n >= 1 && n <= len(c.Entries) {
			return c.Entries[n-1], nil
		}
		return Entry{}, fmt.Errorf("%w: index %d out of range", ErrUnknownCallable, n)
	}
	var found []Entry
	for _, e := range c.Entries {
		if e.Signature.QualifiedName == key {
			found = append(found, e)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	if len(found) > 1 {
		return Entry{}, fmt.Errorf("%w: %q is ambiguous", ErrUnknownCallable, key)
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrUnknownCallable, key)
}

// IDs returns callable ids in discovery order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Signature.ID()
	}
	return out
}

func (c *Catalog) Class(key string) (*ClassDescriptor, bool) {
	cls, ok := c.classes[key]
	return cls, ok
}

// ClassFor maps a type hint seen in module to a discovered class of the same module.
// "*Person", "Person" and "pkg.Person" all name Person.
func (c *Catalog) ClassFor(module, hint string) (*ClassDescriptor, bool) {
	name := strings.TrimLeft(strings.TrimSpace(hint), "*&")
	if strings.HasPrefix(name, "[") || strings.HasPrefix(name, "map[") || strings.HasPrefix(name, "...") {
		return nil, false
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return nil, false
	}
	return c.Class(ClassKey(module, name))
}

// ClassesIn returns the classes of one module sorted by name.
func (c *Catalog) ClassesIn(module string) []*ClassDescriptor {
	var out []*ClassDescriptor
	for _, cls := range c.Classes {
		if cls.Module == module {
			out = append(out, cls)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close releases every runtime of the catalog.
func (c *Catalog) Close(ctx context.Context) error {
	var errs []error
	langs := make([]string, 0, len(c.runtimes))
	for l := range c.runtimes {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if err := c.runtimes[l].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s runtime: %w", l, err))
		}
	}
	return errors.Join(errs...)
}
