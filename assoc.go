package ormion

import (
	"fmt"
	"slices"
	"strings"
)

// listSegment collects items in a list instead of keying them by a column.
const listSegment = "[]"

// AssocTree is a nested arrangement of items produced by FetchAssoc. Inner
// nodes map keys to subtrees; leaves hold one item.
type AssocTree[T any] struct {
	leaf     bool
	item     T
	keys     []any
	children map[string]*AssocTree[T]
}

// ParseAssocPath splits "category,[],id" into its segments.
func ParseAssocPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty assoc path", ErrInvalidConfig)
	}

	segments := strings.Split(path, ",")
	for i, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in assoc path %q", ErrInvalidConfig, path)
		}
		segments[i] = s
	}
	return segments, nil
}

func buildAssoc[T any](path string, items []T, get func(T, string) (any, bool)) (*AssocTree[T], error) {
	segments, err := ParseAssocPath(path)
	if err != nil {
		return nil, err
	}

	root := newAssocNode[T]()
	for _, item := range items {
		node := root
		for _, seg := range segments {
			var key any
			if seg == listSegment {
				key = len(node.keys)
			} else {
				v, ok := get(item, seg)
				if !ok {
					return nil, fmt.Errorf("%w: assoc column %q", ErrNotFound, seg)
				}
				key = normalize(v)
			}
			node = node.child(key)
		}
		node.leaf = true
		node.item = item
	}
	return root, nil
}

func newAssocNode[T any]() *AssocTree[T] {
	return &AssocTree[T]{children: make(map[string]*AssocTree[T])}
}

func (t *AssocTree[T]) child(key any) *AssocTree[T] {
	k := identityKey(key)
	if c, ok := t.children[k]; ok {
		return c
	}
	c := newAssocNode[T]()
	t.keys = append(t.keys, key)
	t.children[k] = c
	return c
}

// IsLeaf reports whether the node holds an item.
func (t *AssocTree[T]) IsLeaf() bool {
	return t.leaf
}

// Item returns the item of a leaf.
func (t *AssocTree[T]) Item() (T, bool) {
	return t.item, t.leaf
}

// Keys returns the child keys in first-seen order. Keys of list levels are
// their int positions.
func (t *AssocTree[T]) Keys() []any {
	return slices.Clone(t.keys)
}

// Child returns the subtree under key.
func (t *AssocTree[T]) Child(key any) (*AssocTree[T], bool) {
	c, ok := t.children[identityKey(normalize(key))]
	return c, ok
}

// Len returns the number of children.
func (t *AssocTree[T]) Len() int {
	return len(t.keys)
}

// Walk calls fn for every leaf in key order with the keys leading to it.
func (t *AssocTree[T]) Walk(fn func(path []any, item T)) {
	t.walk(nil, fn)
}

func (t *AssocTree[T]) walk(path []any, fn func([]any, T)) {
	if t.leaf {
		fn(slices.Clone(path), t.item)
		return
	}
	for _, k := range t.keys {
		t.children[identityKey(k)].walk(append(path, k), fn)
	}
}
