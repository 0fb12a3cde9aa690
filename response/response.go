/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package response implements one Response per
// getDependencies request, accumulating the discovery-order module list
// for the lifetime of its didCreate/didDelete subscription and producing
// the final ordered, read-only view once its entry's dependency tree
// settles.
package response

import (
	"errors"
	"sync"

	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolutioncache"
)

// ErrFinalized describes a mutation after finalization. No method returns
// it: once AllResolved has finalized a Response, its didCreate/didDelete
// callbacks ignore further events.
var ErrFinalized = errors.New("response: mutation after finalization")

// IDResolver computes the identifier reported as MainModuleID for the
// entry module: its haste name if it has one, its relative path
// otherwise. Supplied by the caller (depgraph), which is the layer that
// owns the haste index and project root, keeping this package decoupled
// from them.
type IDResolver func(m *module.Module) string

// Response accumulates one request's module list in didCreate/didDelete
// discovery order, then exposes it as an ordered, duplicate-free,
// read-only dependency list once the entry is fully resolved.
type Response struct {
	cache *resolutioncache.ResolutionCache

	mu         sync.Mutex
	order      []*module.Module
	seen       map[*module.Module]bool
	mainModule *module.Module
	finalized  bool
	mainID     string

	closeOnce   sync.Once
	didCreateID int
	didDeleteID int
}

// New creates a Response and subscribes it to cache's didCreate/didDelete
// events; call Close once the response is no longer needed, unsubscribing
// it so the cache does not retain it for the rest of the process.
func New(cache *resolutioncache.ResolutionCache) *Response {
	r := &Response{
		cache: cache,
		seen:  make(map[*module.Module]bool),
	}
	r.didCreateID = cache.OnDidCreate(r.onDidCreate)
	r.didDeleteID = cache.OnDidDelete(r.onDidDelete)
	return r
}

// Close unsubscribes r from its cache's didCreate/didDelete events. Safe
// to call more than once; only the first call has any effect. Dependencies
// and MainModule remain readable afterward since they are plain copies of
// already-recorded state.
func (r *Response) Close() {
	r.closeOnce.Do(func() {
		r.cache.OffDidCreate(r.didCreateID)
		r.cache.OffDidDelete(r.didDeleteID)
	})
}

func (r *Response) onDidCreate(m *module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized || r.seen[m] {
		return
	}
	r.seen[m] = true
	r.order = append(r.order, m)
	if r.mainModule == nil {
		r.mainModule = m
	}
}

func (r *Response) onDidDelete(m *module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized || !r.seen[m] {
		return
	}
	delete(r.seen, m)
	for i, candidate := range r.order {
		if candidate == m {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	// mainModule is stable once set: it is never reset
	// by a didDelete, even if the entry module itself is evicted.
}

// AllResolved waits for the cache-wide resolution barrier, then resolves
// mainModuleId and marks the Response finalized (single-shot: further
// mutation is rejected). Returns an error if no dependency was recorded.
func (r *Response) AllResolved(opts module.TransformOptions, onError resolutioncache.OnErrorFunc, onProgress resolutioncache.OnProgressFunc, idResolver IDResolver) error {
	<-r.cache.AllResolved(opts, onError, onProgress)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return errors.New("response: allResolved with zero dependencies")
	}
	if idResolver != nil {
		r.mainID = idResolver(r.mainModule)
	} else {
		r.mainID = r.mainModule.Path()
	}
	r.finalized = true
	return nil
}

// Dependencies returns the discovery-order module list. Valid at any
// point, though only stable after AllResolved.
func (r *Response) Dependencies() []*module.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*module.Module, len(r.order))
	copy(out, r.order)
	return out
}

// MainModule returns the first module discovered for this request.
func (r *Response) MainModule() *module.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainModule
}

// MainModuleID returns the resolved identifier computed by AllResolved; it
// is empty until AllResolved has succeeded.
func (r *Response) MainModuleID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainID
}

// IsFinalized reports whether AllResolved has already completed once.
func (r *Response) IsFinalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Copy produces an immutable-looking view of the dependency list with an
// optional prefix prepended ahead of the real modules (used to inject
// polyfills before the application's own entry chain). numPrepended
// reports how many of the leading entries in the returned slice are from
// prefix rather than the Response's own dependencies.
func (r *Response) Copy(prefix []*module.Module) (dependencies []*module.Module, numPrepended int) {
	deps := r.Dependencies()
	out := make([]*module.Module, 0, len(prefix)+len(deps))
	out = append(out, prefix...)
	out = append(out, deps...)
	return out, len(prefix)
}
