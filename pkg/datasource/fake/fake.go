// Package fake provides in-memory collaborators for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/opscart/index-maint/pkg/models"
)

// Backend is a scriptable, recording implementation of datasource.Backend
type Backend struct {
	mu sync.Mutex

	Targets    []models.Target
	Structures map[string]map[models.ObjectKind][]models.RawStructure

	// Failures keyed by target name, index name and "schema.object"
	FetchErrors   map[string]error
	ApplyErrors   map[string]error
	RefreshErrors map[string]error

	// OnApply runs before each mutation is recorded
	OnApply func(ctx context.Context, cmd models.Command)

	FetchCalls []string
	Applied    []models.Command
	Refreshed  []string
	Closed     bool
}

// NewBackend creates an empty fake
func NewBackend() *Backend {
	return &Backend{
		Structures:    make(map[string]map[models.ObjectKind][]models.RawStructure),
		FetchErrors:   make(map[string]error),
		ApplyErrors:   make(map[string]error),
		RefreshErrors: make(map[string]error),
	}
}

// AddStructures registers structures for a target and adds the target
func (b *Backend) AddStructures(target string, structures ...models.RawStructure) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.Structures[target]; !ok {
		b.Structures[target] = make(map[models.ObjectKind][]models.RawStructure)
		b.Targets = append(b.Targets, models.Target{Name: target, ID: target})
	}
	for _, s := range structures {
		if s.Kind == "" {
			s.Kind = models.ObjectTable
		}
		b.Structures[target][s.Kind] = append(b.Structures[target][s.Kind], s)
	}
	return b
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) FetchStructures(ctx context.Context, target models.Target, kind models.ObjectKind) ([]models.RawStructure, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.FetchCalls = append(b.FetchCalls, fmt.Sprintf("%s/%s", target.Name, kind))
	if err := b.FetchErrors[target.Name]; err != nil {
		return nil, err
	}
	out := make([]models.RawStructure, len(b.Structures[target.Name][kind]))
	copy(out, b.Structures[target.Name][kind])
	return out, nil
}

func (b *Backend) Apply(ctx context.Context, target string, cmd models.Command) error {
	if b.OnApply != nil {
		b.OnApply(ctx, cmd)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Applied = append(b.Applied, cmd)
	return b.ApplyErrors[cmd.Index]
}

func (b *Backend) RefreshStatistics(ctx context.Context, target, schema, object string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Refreshed = append(b.Refreshed, fmt.Sprintf("%s.%s.%s", target, schema, object))
	return b.RefreshErrors[schema+"."+object]
}

func (b *Backend) ListTargets(ctx context.Context, scope models.Scope, name string) ([]models.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch scope {
	case models.ScopeCurrent:
		if len(b.Targets) == 0 {
			return nil, models.ErrTargetNotFound
		}
		return b.Targets[:1], nil
	case models.ScopeSpecific:
		for _, t := range b.Targets {
			if t.Name == name {
				return []models.Target{t}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", models.ErrTargetNotFound, name)
	default:
		out := make([]models.Target, len(b.Targets))
		copy(out, b.Targets)
		return out, nil
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// AppliedIndexes returns the index names of applied commands in order
func (b *Backend) AppliedIndexes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.Applied))
	for _, cmd := range b.Applied {
		out = append(out, cmd.Index)
	}
	return out
}
