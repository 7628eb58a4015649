package registry

import (
	"context"
	"sync"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// StaticSource serves a fixed list of instances (tests, API-supplied sets)
type StaticSource struct {
	mu        sync.RWMutex
	instances []contracts.StrategyInstance
	err       error
}

// NewStaticSource creates an in-memory instance source
func NewStaticSource(instances ...contracts.StrategyInstance) *StaticSource {
	return &StaticSource{instances: instances}
}

// Set replaces the served instances
func (s *StaticSource) Set(instances ...contracts.StrategyInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = instances
}

// FailWith makes every subsequent call return err wrapped as a registry error
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ListActiveInstances implements contracts.InstanceSource
func (s *StaticSource) ListActiveInstances(ctx context.Context, sectorFilter string) ([]contracts.StrategyInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, wrapRegistry(s.err)
	}

	copied := make([]contracts.StrategyInstance, len(s.instances))
	copy(copied, s.instances)
	return filterActive(copied, sectorFilter), nil
}

// Upsert replaces the instance with the same id or appends it
func (s *StaticSource) Upsert(ctx context.Context, inst contracts.StrategyInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return wrapRegistry(s.err)
	}
	for i := range s.instances {
		if s.instances[i].ID == inst.ID {
			s.instances[i] = inst
			return nil
		}
	}
	s.instances = append(s.instances, inst)
	return nil
}
