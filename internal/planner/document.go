package planner

import (
	"bytes"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Document is the wire form of a plan, accepted as YAML or JSON.
type Document struct {
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description" json:"description"`
	Tasks       []DocumentTask `yaml:"tasks" json:"tasks"`
}

type DocumentTask struct {
	ID           string   `yaml:"id" json:"id"`
	Role         string   `yaml:"role" json:"role"`
	Dependencies []string `yaml:"dependencies" json:"dependencies"`
	Description  string   `yaml:"description" json:"description"`
}

// Plan converts the document into a plan for projectID stamped with now.
func (d Document) Plan(projectID string, now time.Time) domain.Plan {
	tasks := make([]domain.Task, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		tasks = append(tasks, domain.NewTask(
			strings.TrimSpace(t.ID),
			strings.TrimSpace(t.Role),
			t.Dependencies,
			t.Description,
			now,
		))
	}
	return domain.NewPlan(projectID, d.Title, d.Description, tasks, now)
}

// ParseDocument decodes a YAML or JSON plan document. Text around a single
// fenced code block is ignored, so model output wrapped in ``` fences parses.
func ParseDocument(data []byte, projectID string, now time.Time) (domain.Plan, error) {
	data = unfence(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Plan{}, &domain.DecompositionError{Reason: "empty plan document"}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Plan{}, &domain.DecompositionError{Reason: "malformed plan document", Err: err}
	}
	return doc.Plan(projectID, now), nil
}

func unfence(data []byte) []byte {
	start := bytes.Index(data, []byte("```"))
	if start < 0 {
		return data
	}
	rest := data[start+3:]
	// Skip the info string (```json, ```yaml).
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := bytes.Index(rest, []byte("```")); end >= 0 {
		return rest[:end]
	}
	return rest
}
