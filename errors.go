package grove

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is. Each typed error below matches its
// sentinel through an Is method.
var (
	ErrDuplicateName      = errors.New("grove: duplicate name")
	ErrConcurrency        = errors.New("grove: retry budget exhausted")
	ErrNameSpaceExhausted = errors.New("grove: auto-name space exhausted")
	ErrKeyNotFound        = errors.New("grove: key not found")
	ErrConsistency        = errors.New("grove: internal consistency fault")
	ErrHierarchy          = errors.New("grove: invalid hierarchy operation")
	ErrInvalidName        = errors.New("grove: invalid name")
	ErrRenderInProgress   = errors.New("grove: scene is already rendering")
)

// DuplicateNameError is returned when a node is added or renamed into a
// collection whose target key is held by a different node.
type DuplicateNameError struct {
	Name  string
	Owner string // id of the owning container, "" for the root
}

func (e *DuplicateNameError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("grove: duplicate name %q", e.Name)
	}
	return fmt.Sprintf("grove: duplicate name %q in %q", e.Name, e.Owner)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// ConcurrencyError is returned when a collection mutation lost its
// compare-and-swap more times than the retry policy allows.
type ConcurrencyError struct {
	Op         string
	RetryCount int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("grove: %s failed after %d retries", e.Op, e.RetryCount)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }

// NameSpaceExhaustedError is returned when auto-naming found no free index.
type NameSpaceExhaustedError struct {
	Base  string
	Limit int
}

func (e *NameSpaceExhaustedError) Error() string {
	return fmt.Sprintf("grove: no free name for %q below index %#x", e.Base, e.Limit)
}

func (e *NameSpaceExhaustedError) Is(target error) bool { return target == ErrNameSpaceExhausted }

// KeyNotFoundError is returned when a relative id lookup fails.
type KeyNotFoundError struct {
	Path    string
	Segment string
}

func (e *KeyNotFoundError) Error() string {
	if e.Path == e.Segment {
		return fmt.Sprintf("grove: %q not found", e.Path)
	}
	return fmt.Sprintf("grove: segment %q of %q not found", e.Segment, e.Path)
}

func (e *KeyNotFoundError) Is(target error) bool { return target == ErrKeyNotFound }

// ConsistencyError reports a violated internal invariant: a rename that
// removed the wrong reference, or a matrix stack left unbalanced after a
// traversal. It must be propagated, never swallowed.
type ConsistencyError struct {
	Op     string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("grove: consistency fault in %s: %s", e.Op, e.Detail)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// HierarchyError is returned for structural misuse: adding nil, adding a
// node that already has a holder, or adding a node beneath itself.
type HierarchyError struct {
	Op     string
	Node   string
	Reason string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("grove: %s %q: %s", e.Op, e.Node, e.Reason)
}

func (e *HierarchyError) Is(target error) bool { return target == ErrHierarchy }

// InvalidNameError is returned for names containing the id separator.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("grove: name %q must not contain %q", e.Name, Separator)
}

func (e *InvalidNameError) Is(target error) bool { return target == ErrInvalidName }
