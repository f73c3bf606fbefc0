package domain

import (
	"slices"
	"time"
)

// Plan is the validated description of a project's tasks and dependency edges.
type Plan struct {
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPlan builds a plan stamped with now. The task slice is copied.
func NewPlan(projectID, title, description string, tasks []Task, now time.Time) Plan {
	cp := make([]Task, len(tasks))
	for i, t := range tasks {
		cp[i] = t.clone()
	}
	return Plan{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Tasks:       cp,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Dependents maps each task id to the ids of the tasks that directly depend on it.
func (p Plan) Dependents() map[string][]string {
	out := make(map[string][]string)
	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			out[dep] = append(out[dep], t.ID)
		}
	}
	for k := range out {
		slices.Sort(out[k])
	}
	return out
}
