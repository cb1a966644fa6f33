package auto

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/schema"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Role is the system prompt and response exemplar for one kind of oracle
// request.
type Role struct {
	System string `yaml:"system"`

	// Exemplar is a JSON or YAML document whose shape responses must match
	Exemplar string `yaml:"exemplar,omitempty"`

	schema map[string]any
}

// Schema returns the decoded exemplar.
func (r *Role) Schema() map[string]any {
	return r.schema
}

func (r *Role) compile(name string, structured bool) error {
	if r.System == "" {
		return fmt.Errorf("%s: system prompt is empty", name)
	}
	if !structured {
		return nil
	}
	if r.Exemplar == "" {
		return fmt.Errorf("%s: exemplar is empty", name)
	}
	var doc any
	if err := yaml.Unmarshal([]byte(r.Exemplar), &doc); err != nil {
		return fmt.Errorf("%s: exemplar does not parse: %w", name, err)
	}
	obj, ok := schema.Normalize(doc).(map[string]any)
	if !ok {
		return fmt.Errorf("%s: exemplar is %s, not an object", name, schema.KindOf(doc))
	}
	r.schema = obj
	return nil
}

// Prompts holds every role the engine sends to the oracle. It is passed to
// the engine explicitly; nothing reads it from global state.
type Prompts struct {
	TaskPlanning     Role `yaml:"taskPlanning"`
	PlanReevaluation Role `yaml:"planReevaluation"`
	PlanEditor       Role `yaml:"planEditor"`
	Decomposition    Role `yaml:"decomposition"`
}

// DefaultPrompts returns the embedded prompts.
func DefaultPrompts() *Prompts {
	p, err := parsePrompts(defaultPromptsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return p
}

// LoadPrompts reads a prompts file. Roles missing from the file keep their
// embedded defaults. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read prompts file: %s", path), err)
	}
	p, err := parsePrompts(data, DefaultPrompts())
	if err != nil {
		return nil, errors.NewConfigInvalidError(path, err)
	}
	return p, nil
}

func parsePrompts(data []byte, base *Prompts) (*Prompts, error) {
	p := &Prompts{}
	if base != nil {
		*p = *base
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prompts) compile() error {
	if err := p.TaskPlanning.compile("taskPlanning", true); err != nil {
		return err
	}
	if err := p.PlanReevaluation.compile("planReevaluation", true); err != nil {
		return err
	}
	if err := p.PlanEditor.compile("planEditor", true); err != nil {
		return err
	}
	return p.Decomposition.compile("decomposition", false)
}
