package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Composition errors returned by Attach.
var (
	ErrSelfContainment = errors.New("an item cannot contain itself")
	ErrAlreadyInKit    = errors.New("item already belongs to a kit")
	ErrNestedKit       = errors.New("kits cannot be nested")
)

// Composition is the single source of truth for kit membership. A parent owns
// an ordered list of children and every child has at most one parent, so the
// parent→children and child→parent views can never disagree.
//
// The zero value is ready to use.
type Composition struct {
	children map[string][]string
	parents  map[string]string
}

// NewComposition returns an empty relation.
func NewComposition() Composition {
	return Composition{
		children: make(map[string][]string),
		parents:  make(map[string]string),
	}
}

func (c *Composition) init() {
	if c.children == nil {
		c.children = make(map[string][]string)
	}
	if c.parents == nil {
		c.parents = make(map[string]string)
	}
}

// Attach appends childID to parentID's children. Depth is limited to one: a
// parent cannot itself be a child and a child cannot itself be a parent.
func (c *Composition) Attach(parentID, childID string) error {
	if parentID == "" || childID == "" {
		return fmt.Errorf("composition: empty id")
	}
	if parentID == childID {
		return ErrSelfContainment
	}
	c.init()
	if existing, ok := c.parents[childID]; ok {
		return fmt.Errorf("%w: %s is in %s", ErrAlreadyInKit, childID, existing)
	}
	if _, nested := c.parents[parentID]; nested {
		return fmt.Errorf("%w: %s is itself a kit child", ErrNestedKit, parentID)
	}
	if len(c.children[childID]) > 0 {
		return fmt.Errorf("%w: %s has children", ErrNestedKit, childID)
	}
	c.children[parentID] = append(c.children[parentID], childID)
	c.parents[childID] = parentID
	return nil
}

// Detach removes childID from parentID. It reports whether a link existed.
func (c *Composition) Detach(parentID, childID string) bool {
	if c.parents[childID] != parentID || parentID == "" {
		return false
	}
	delete(c.parents, childID)
	kids := c.children[parentID]
	for i, id := range kids {
		if id == childID {
			kids = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	if len(kids) == 0 {
		delete(c.children, parentID)
	} else {
		c.children[parentID] = kids
	}
	return true
}

// DetachAll removes every child of parentID and returns them in order.
func (c *Composition) DetachAll(parentID string) []string {
	kids := c.children[parentID]
	for _, id := range kids {
		delete(c.parents, id)
	}
	delete(c.children, parentID)
	return kids
}

// Remove drops every link that involves id, as parent or as child.
func (c *Composition) Remove(id string) {
	if parent, ok := c.parents[id]; ok {
		c.Detach(parent, id)
	}
	c.DetachAll(id)
}

// Children returns a copy of parentID's ordered children.
func (c Composition) Children(parentID string) []string {
	kids := c.children[parentID]
	if len(kids) == 0 {
		return nil
	}
	return append([]string(nil), kids...)
}

// Parent returns the parent of childID.
func (c Composition) Parent(childID string) (string, bool) {
	p, ok := c.parents[childID]
	return p, ok
}

// Parents lists every id that currently has children, sorted.
func (c Composition) Parents() []string {
	out := make([]string, 0, len(c.children))
	for id := range c.children {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the relation.
func (c Composition) Clone() Composition {
	cp := NewComposition()
	for parent, kids := range c.children {
		cp.children[parent] = append([]string(nil), kids...)
	}
	for child, parent := range c.parents {
		cp.parents[child] = parent
	}
	return cp
}

// Map exports the relation as parent id → ordered child ids.
func (c Composition) Map() map[string][]string {
	out := make(map[string][]string, len(c.children))
	for parent, kids := range c.children {
		out[parent] = append([]string(nil), kids...)
	}
	return out
}

// CompositionFromMap rebuilds a relation from parent id → ordered child ids,
// applying the same constraints as Attach. Parents are visited in sorted order
// so conflicting input resolves deterministically.
func CompositionFromMap(m map[string][]string) (Composition, error) {
	c := NewComposition()
	parents := make([]string, 0, len(m))
	for parent := range m {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	for _, parent := range parents {
		for _, child := range m[parent] {
			if err := c.Attach(parent, child); err != nil {
				return NewComposition(), fmt.Errorf("composition %s/%s: %w", parent, child, err)
			}
		}
	}
	return c, nil
}

// MarshalJSON encodes the relation as a parent → children object.
func (c Composition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// UnmarshalJSON decodes a parent → children object.
func (c *Composition) UnmarshalJSON(data []byte) error {
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rebuilt, err := CompositionFromMap(m)
	if err != nil {
		return err
	}
	*c = rebuilt
	return nil
}
