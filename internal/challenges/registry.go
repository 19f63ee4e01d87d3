package challenges

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"challengesAPI/internal/types/challenge"

	"gopkg.in/yaml.v3"
)

//go:embed challenges.yaml
var defaultDefinitions []byte

// Registry is the provisioned set of challenge definitions, in file order.
type Registry struct {
	defs  map[string]challenge.Definition
	order []string
}

type registryFile struct {
	Challenges []challenge.Definition `yaml:"challenges"`
}

func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultDefinitions)
}

// LoadRegistry reads definitions from path, or the built-in set when path
// is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read challenges file: %w", err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse challenges file: %w", err)
	}

	r := &Registry{defs: make(map[string]challenge.Definition, len(file.Challenges))}
	for _, def := range file.Challenges {
		if def.ID == "" {
			return nil, fmt.Errorf("challenge definition without id")
		}
		if _, dup := r.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate challenge definition: %s", def.ID)
		}
		switch def.Type {
		case challenge.TypeNumeric, challenge.TypeBoolean, challenge.TypeAggregate:
		case "":
			def.Type = challenge.TypeNumeric
		default:
			return nil, fmt.Errorf("challenge %s: unknown type %q", def.ID, def.Type)
		}
		if def.StepCount != nil && *def.StepCount < 0 {
			return nil, fmt.Errorf("challenge %s: negative step count", def.ID)
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	return r, nil
}

func (r *Registry) Get(id string) (challenge.Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

func (r *Registry) All() []challenge.Definition {
	out := make([]challenge.Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// BuildListeners creates a manager for every provisioned challenge that has
// an updater and registers it for the updater's event kind.
func BuildListeners(r *Registry, logger *slog.Logger, opts ...ManagerOption) (*Listeners, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listeners := NewListeners()
	for _, def := range r.All() {
		updater, kind, err := NewUpdater(def.ID)
		if err != nil {
			return nil, err
		}
		m := NewManager(def.ID, updater, append([]ManagerOption{WithLogger(logger)}, opts...)...)
		listeners.Register(kind, m)
	}
	return listeners, nil
}
