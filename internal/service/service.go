// Package service runs long-lived components side by side.
package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Service interface {
	Run(ctx context.Context) error
}

// Func adapts a function to Service.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}

// Manager manages a collection of services.
type Manager struct {
	services []Service
	mu       sync.Mutex
	wg       *errgroup.Group
}

func NewManager() *Manager {
	return &Manager{services: make([]Service, 0)}
}

// Register adds services to the Manager. Services registered after Run are
// not started.
func (sm *Manager) Register(s ...Service) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.services = append(sm.services, s...)
}

// Run runs all registered services concurrently. The first service error
// cancels the context passed to the others.
func (sm *Manager) Run(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.services) == 0 {
		return
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, s := range sm.services {
		group.Go(func() error {
			return s.Run(ctx)
		})
	}
	sm.wg = group
}

// Wait blocks until all services returned and reports the first error.
func (sm *Manager) Wait() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.wg == nil {
		return nil
	}
	return sm.wg.Wait()
}
