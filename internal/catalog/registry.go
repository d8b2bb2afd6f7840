package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/anvil/internal/engine"
)

var (
	// ErrUnknownKind is returned when no kind is registered under a name.
	ErrUnknownKind = errors.New("unknown action kind")

	// ErrInvalidParams is returned when a kind rejects its parameters.
	ErrInvalidParams = errors.New("invalid action params")
)

// Kind turns JSON parameters into an engine callback.
type Kind interface {
	// Build validates params and returns the run callback. Empty params
	// select the kind's defaults.
	Build(params json.RawMessage) (engine.Func, error)

	// Description is a one-line summary for listings.
	Description() string
}

// KindInfo pairs a kind name with its description.
type KindInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry holds the registered action kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Kind),
	}
}

// Register adds a kind under the given name, replacing any earlier one.
func (r *Registry) Register(name string, k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[name] = k
}

// Resolve returns the kind registered under name.
func (r *Registry) Resolve(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Build resolves name and builds its callback from params.
func (r *Registry) Build(name string, params json.RawMessage) (engine.Func, error) {
	k, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return k.Build(params)
}

// List returns all registered kinds sorted by name for a stable API response.
func (r *Registry) List() []KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]KindInfo, 0, len(r.kinds))
	for name, k := range r.kinds {
		infos = append(infos, KindInfo{Name: name, Description: k.Description()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// decodeParams unmarshals params into dst, treating empty input as "{}".
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}
