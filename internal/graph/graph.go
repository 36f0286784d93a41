// Package graph models the prerequisite relationships between the stages of
// a workflow definition.
package graph

import "fmt"

func New() *Graph {
	return &Graph{
		prereqs: make(map[string][]string),
		nodes:   make(map[string]bool),
	}
}

type Graph struct {
	order   []string
	prereqs map[string][]string
	nodes   map[string]bool
}

// AddNode registers a stage. Nodes keep their insertion order which is used
// for deterministic iteration.
func (g *Graph) AddNode(name string) {
	if g.nodes[name] {
		return
	}

	g.nodes[name] = true
	g.order = append(g.order, name)
}

// AddDependency records that node requires prereq to have completed before
// it becomes eligible. Both sides are registered as nodes.
func (g *Graph) AddDependency(node, prereq string) {
	g.AddNode(node)
	g.AddNode(prereq)
	g.prereqs[node] = append(g.prereqs[node], prereq)
}

func (g *Graph) Contains(name string) bool {
	return g.nodes[name]
}

// Prereqs returns the direct prerequisites of the node.
func (g *Graph) Prereqs(name string) []string {
	return g.prereqs[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	return g.order
}

// Validate checks that every prerequisite refers to a known node and that
// the dependency relation contains no cycle.
func (g *Graph) Validate() error {
	for _, node := range g.order {
		for _, p := range g.prereqs[node] {
			if p == node {
				return fmt.Errorf("node %q depends on itself", node)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		switch state[node] {
		case visiting:
			return fmt.Errorf("dependency cycle through node %q", node)
		case done:
			return nil
		}

		state[node] = visiting
		for _, p := range g.prereqs[node] {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[node] = done

		return nil
	}

	for _, node := range g.order {
		if err := visit(node); err != nil {
			return err
		}
	}

	return nil
}

// Ready returns, in insertion order, the nodes whose prerequisites all
// satisfy the provided predicate.
func (g *Graph) Ready(completed func(node string) bool) []string {
	var ready []string
	for _, node := range g.order {
		ok := true
		for _, p := range g.prereqs[node] {
			if !completed(p) {
				ok = false
				break
			}
		}

		if ok {
			ready = append(ready, node)
		}
	}

	return ready
}
