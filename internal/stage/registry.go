package stage

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID identifies a pipeline stage.
type ID string

const (
	Uploaded            ID = "uploaded"
	AutoEditing         ID = "auto-editing"
	Transcribing        ID = "transcribing"
	StoringTranscript   ID = "storing-transcript"
	DetectingHighlights ID = "detecting-highlights"
	GeneratingPlan      ID = "generating-plan"
	AcquiringBroll      ID = "acquiring-broll"
	Rendering           ID = "rendering"
	Uploading           ID = "uploading"
	Completed           ID = "completed"
)

// Definition describes one registry entry.
type Definition struct {
	ID ID
	// Required stages fail the job when they fail. Optional stages are
	// skipped and the pipeline continues.
	Required bool
	// Network marks stages whose collaborator is reached over the network.
	// Collaborator timeouts there are retryable.
	Network bool
}

// UnknownStageError reports a stage identifier that is not part of the registry.
type UnknownStageError struct {
	Stage ID
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", string(e.Stage))
}

// Registry is the fixed, ordered set of pipeline stages.
type Registry struct {
	defs  []Definition
	index map[ID]int
}

// NewRegistry validates and freezes an ordered stage list. The list must
// start with a required stage and end with Completed.
func NewRegistry(defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("stage registry: no stages")
	}
	if !defs[0].Required {
		return nil, fmt.Errorf("stage registry: first stage %q must be required", defs[0].ID)
	}
	if last := defs[len(defs)-1]; last.ID != Completed {
		return nil, fmt.Errorf("stage registry: last stage must be %q, got %q", Completed, last.ID)
	}
	reg := &Registry{
		defs:  make([]Definition, len(defs)),
		index: make(map[ID]int, len(defs)),
	}
	for i, def := range defs {
		if strings.TrimSpace(string(def.ID)) == "" {
			return nil, fmt.Errorf("stage registry: empty id at position %d", i)
		}
		if _, dup := reg.index[def.ID]; dup {
			return nil, fmt.Errorf("stage registry: duplicate stage %q", def.ID)
		}
		reg.defs[i] = def
		reg.index[def.ID] = i
	}
	return reg, nil
}

var defaultRegistry = mustRegistry(
	Definition{ID: Uploaded, Required: true},
	Definition{ID: AutoEditing, Required: true},
	Definition{ID: Transcribing, Required: true, Network: true},
	Definition{ID: StoringTranscript, Required: true, Network: true},
	Definition{ID: DetectingHighlights, Required: true, Network: true},
	Definition{ID: GeneratingPlan, Required: true, Network: true},
	Definition{ID: AcquiringBroll, Required: false, Network: true},
	Definition{ID: Rendering, Required: true},
	Definition{ID: Uploading, Required: true, Network: true},
	Definition{ID: Completed, Required: true},
)

func mustRegistry(defs ...Definition) *Registry {
	reg, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Default returns the canonical pipeline registry.
func Default() *Registry {
	return defaultRegistry
}

// Next returns the stage immediately following id. It reports false when id
// is the terminal stage or is not registered.
func (r *Registry) Next(id ID) (Definition, bool) {
	pos, ok := r.index[id]
	if !ok || pos+1 >= len(r.defs) {
		return Definition{}, false
	}
	return r.defs[pos+1], true
}

// IsValid reports whether candidate is a registered stage.
func (r *Registry) IsValid(candidate ID) bool {
	_, ok := r.index[candidate]
	return ok
}

// IndexOf returns the zero-based position of id.
func (r *Registry) IndexOf(id ID) (int, error) {
	pos, ok := r.index[id]
	if !ok {
		return 0, &UnknownStageError{Stage: id}
	}
	return pos, nil
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id ID) (Definition, bool) {
	pos, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return r.defs[pos], true
}

// First returns the entry stage.
func (r *Registry) First() Definition { return r.defs[0] }

// Terminal returns the final stage.
func (r *Registry) Terminal() Definition { return r.defs[len(r.defs)-1] }

// Len returns the number of registered stages.
func (r *Registry) Len() int { return len(r.defs) }

// Definitions returns a copy of the ordered stage list.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Label renders a stage id for humans ("auto-editing" becomes "Auto Editing").
func Label(id ID) string {
	words := strings.Fields(strings.ReplaceAll(string(id), "-", " "))
	if len(words) == 0 {
		return ""
	}
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// Parse normalizes user input into a stage id. It accepts any case and
// underscores or spaces in place of dashes.
func Parse(value string) (ID, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	id := ID(normalized)
	if !defaultRegistry.IsValid(id) {
		return "", &UnknownStageError{Stage: ID(value)}
	}
	return id, nil
}
