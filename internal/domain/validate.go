package domain

import "strings"

// ValidatePlan checks that a plan is well-formed before execution begins.
//
// Checks run in this order and the first violation is returned:
//  1. every task has an id and a role
//  2. every dependency references a task in the same plan
//  3. the dependency relation is acyclic
//  4. task ids are unique
func ValidatePlan(p Plan) error {
	byID := make(map[string]Task, len(p.Tasks))
	for _, t := range p.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return &PlanValidationError{ProjectID: p.ProjectID, Kind: ValidationInvalidTask, Detail: "empty task id"}
		}
		if strings.TrimSpace(t.Role) == "" {
			return &PlanValidationError{ProjectID: p.ProjectID, Kind: ValidationInvalidTask, TaskID: t.ID, Detail: "empty role"}
		}
		if _, ok := byID[t.ID]; !ok {
			byID[t.ID] = t
		}
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				return &PlanValidationError{
					ProjectID: p.ProjectID,
					Kind:      ValidationMissingDependency,
					TaskID:    t.ID,
					Ref:       dep,
				}
			}
		}
	}

	if cycle := findCycle(p.Tasks, byID); cycle != nil {
		return &PlanValidationError{ProjectID: p.ProjectID, Kind: ValidationCycle, TaskID: cycle[0], Cycle: cycle}
	}

	seen := make(map[string]struct{}, len(p.Tasks))
	for _, t := range p.Tasks {
		if _, dup := seen[t.ID]; dup {
			return &PlanValidationError{ProjectID: p.ProjectID, Kind: ValidationDuplicateID, TaskID: t.ID}
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// findCycle runs a depth-first search with visiting/visited markers over the
// dependency edges and returns one cycle path, or nil. Tasks and their
// dependencies are walked in declaration order so the witness is stable.
func findCycle(tasks []Task, byID map[string]Task) []string {
	const (
		unvisited = iota
		visiting
		visited
	)

	mark := make(map[string]int, len(byID))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		mark[id] = visiting
		stack = append(stack, id)
		for _, dep := range byID[id].Dependencies {
			switch mark[dep] {
			case visiting:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		mark[id] = visited
		return false
	}

	for _, t := range tasks {
		if mark[t.ID] == unvisited && visit(t.ID) {
			return cycle
		}
	}
	return nil
}
