// Package models defines the typed results produced by the AI enrichment
// operations: task metadata, template kits, and task breakdowns.
package models

import "strings"

// Categories a task or kit can be filed under.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryShopping = "shopping"
	CategoryHealth   = "health"
	CategoryTravel   = "travel"
	CategoryOther    = "other"
)

var knownCategories = map[string]bool{
	CategoryWork:     true,
	CategoryPersonal: true,
	CategoryShopping: true,
	CategoryHealth:   true,
	CategoryTravel:   true,
	CategoryOther:    true,
}

// TaskMetadata is the enrichment result for a single task title.
type TaskMetadata struct {
	// Category is one of the known category constants.
	Category string `json:"category"`

	// Tags are short free-form labels (at most a handful).
	Tags []string `json:"tags"`

	// IsUrgent reports whether the title implies time pressure.
	IsUrgent bool `json:"is_urgent"`

	// ExtractedTime is a time expression found in the title
	// ("tomorrow 9am"), empty if none was detected.
	ExtractedTime string `json:"extracted_time,omitempty"`
}

// DefaultMetadata is the inert fallback used when enrichment is skipped
// or throttled. Adding a task must never block on it.
func DefaultMetadata() TaskMetadata {
	return TaskMetadata{Category: CategoryOther, Tags: []string{}}
}

// Normalize clamps the metadata into the known category set and trims tags.
func (m TaskMetadata) Normalize() TaskMetadata {
	out := m
	out.Category = strings.ToLower(strings.TrimSpace(m.Category))
	if !knownCategories[out.Category] {
		out.Category = CategoryOther
	}
	out.Tags = cleanStrings(m.Tags, 5)
	return out
}

// TemplateKit is a reusable checklist generated from a short prompt,
// e.g. "grocery trip" or "weekend camping".
type TemplateKit struct {
	Name     string   `json:"name"`
	Items    []string `json:"items"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// Normalize clamps the kit's category and drops empty items.
func (k TemplateKit) Normalize() TemplateKit {
	out := k
	out.Name = strings.TrimSpace(k.Name)
	out.Category = strings.ToLower(strings.TrimSpace(k.Category))
	if !knownCategories[out.Category] {
		out.Category = CategoryOther
	}
	out.Items = cleanStrings(k.Items, 30)
	out.Tags = cleanStrings(k.Tags, 5)
	return out
}

func cleanStrings(in []string, max int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}
