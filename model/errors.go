package model

import (
	"fmt"
	"strings"
)

// UnknownParentError means a parameter referenced a node name that has not
// been added to the graph. Parents must be added before their children - that
// is what keeps the node list in topological order.
type UnknownParentError struct {
	Node   string // The node whose parameter failed to resolve
	Parent string // The missing name
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("Node %s references unknown parent %s", e.Node, e.Parent)
}

// CyclicDependencyError means the parameter references form a cycle. Cycle
// holds the node names along the cycle, with the starting name repeated at
// the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("Dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// InvalidModelError wraps any validation failure found before sampling
// starts. Callers can unwrap to get at the specific cause.
type InvalidModelError struct {
	Graph string
	Err   error
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("Model %s is not valid: %v", e.Graph, e.Err)
}

// Unwrap returns the underlying cause
func (e *InvalidModelError) Unwrap() error {
	return e.Err
}
