package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestCompositionAttachKeepsBothViewsInSync(t *testing.T) {
	var c Composition
	for _, child := range []string{"LI-001", "LI-002", "LI-003"} {
		if err := c.Attach("LI-010", child); err != nil {
			t.Fatalf("attach %s: %v", child, err)
		}
	}
	if got := c.Children("LI-010"); !reflect.DeepEqual(got, []string{"LI-001", "LI-002", "LI-003"}) {
		t.Fatalf("unexpected children order %v", got)
	}
	for _, child := range c.Children("LI-010") {
		if parent, ok := c.Parent(child); !ok || parent != "LI-010" {
			t.Fatalf("child %s parent = %q, %v", child, parent, ok)
		}
	}

	if !c.Detach("LI-010", "LI-002") {
		t.Fatalf("expected detach to report removal")
	}
	if _, ok := c.Parent("LI-002"); ok {
		t.Fatalf("detached child still has a parent")
	}
	if got := c.Children("LI-010"); !reflect.DeepEqual(got, []string{"LI-001", "LI-003"}) {
		t.Fatalf("unexpected children after detach %v", got)
	}
	if c.Detach("LI-010", "LI-002") {
		t.Fatalf("second detach must be a no-op")
	}
}

func TestCompositionAttachRejectsInvalidLinks(t *testing.T) {
	c := NewComposition()
	if err := c.Attach("K1", "A"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	cases := []struct {
		name   string
		parent string
		child  string
		want   error
	}{
		{"self", "K2", "K2", ErrSelfContainment},
		{"already in kit", "K2", "A", ErrAlreadyInKit},
		{"parent is a child", "A", "B", ErrNestedKit},
		{"child is a parent", "K2", "K1", ErrNestedKit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.Attach(tc.parent, tc.child)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := c.Children("K1"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("failed attaches must not alter state, got %v", got)
	}
}

func TestCompositionDetachAllAndRemove(t *testing.T) {
	c := NewComposition()
	_ = c.Attach("K1", "A")
	_ = c.Attach("K1", "B")
	_ = c.Attach("K2", "C")

	removed := c.DetachAll("K1")
	if !reflect.DeepEqual(removed, []string{"A", "B"}) {
		t.Fatalf("unexpected removed %v", removed)
	}
	if _, ok := c.Parent("A"); ok {
		t.Fatalf("A should have no parent")
	}

	c.Remove("C")
	if len(c.Children("K2")) != 0 {
		t.Fatalf("removing child should empty K2")
	}
	if got := c.Parents(); len(got) != 0 {
		t.Fatalf("expected no parents, got %v", got)
	}
}

func TestCompositionCloneIsIndependent(t *testing.T) {
	c := NewComposition()
	_ = c.Attach("K1", "A")
	cp := c.Clone()
	_ = cp.Attach("K1", "B")
	if len(c.Children("K1")) != 1 {
		t.Fatalf("clone mutation leaked into original")
	}
}

func TestCompositionJSONRoundTrip(t *testing.T) {
	c := NewComposition()
	_ = c.Attach("LI-010", "LI-001")
	_ = c.Attach("LI-010", "LI-002")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Composition
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded.Map(), c.Map()) {
		t.Fatalf("round trip mismatch: %v vs %v", decoded.Map(), c.Map())
	}
	if parent, _ := decoded.Parent("LI-002"); parent != "LI-010" {
		t.Fatalf("parent index not rebuilt")
	}
}

func TestCompositionFromMapRejectsNesting(t *testing.T) {
	_, err := CompositionFromMap(map[string][]string{
		"K1": {"K2"},
		"K2": {"A"},
	})
	if !errors.Is(err, ErrNestedKit) {
		t.Fatalf("expected nested kit error, got %v", err)
	}
}
