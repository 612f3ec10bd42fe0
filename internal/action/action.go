// Package action is the task executor: a registry of named actions and a runner that
// validates params, executes, and normalizes results.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Action is a side-effecting operation the assistant can dispatch.
type Action interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// AliasProvider lets an action answer to alternative names.
type AliasProvider interface {
	Aliases() []string
}

// Descriptor summarizes an action for prompts and listings.
type Descriptor struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Aliases     []string               `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Registry holds all available actions keyed by canonical name and alias.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
		aliases: make(map[string]string),
	}
}

func (r *Registry) Register(a Action) error {
	name := NormalizeName(a.Name())
	if name == "" {
		return fmt.Errorf("action: empty action name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action: %s already registered", name)
	}
	r.actions[name] = a

	if p, ok := a.(AliasProvider); ok {
		for _, alias := range p.Aliases() {
			if key := NormalizeName(alias); key != "" && key != name {
				r.aliases[key] = name
			}
		}
	}
	return nil
}

func (r *Registry) Get(name string) (Action, bool) {
	key := NormalizeName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.actions[key]; ok {
		return a, true
	}
	if canonical, ok := r.aliases[key]; ok {
		a, ok := r.actions[canonical]
		return a, ok
	}
	return nil, false
}

// Descriptors returns all actions sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliasesByName := make(map[string][]string)
	for alias, canonical := range r.aliases {
		aliasesByName[canonical] = append(aliasesByName[canonical], alias)
	}

	descriptors := make([]Descriptor, 0, len(r.actions))
	for _, a := range r.actions {
		aliases := aliasesByName[NormalizeName(a.Name())]
		sort.Strings(aliases)
		descriptors = append(descriptors, Descriptor{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.Parameters(),
			Aliases:     aliases,
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}

// Close releases resources held by actions that implement io.Closer.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, a := range r.actions {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", a.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// NormalizeName makes lookups case-insensitive and ignores separators, so
// "get_weather", "GetWeather" and "getWeather" resolve to the same action.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}
