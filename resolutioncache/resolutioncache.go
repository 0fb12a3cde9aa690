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

// Package resolutioncache implements per-module Resolution
// records holding resolved dependency edges, the cache-wide inverse
// ("dependers") index, dirty propagation on file change, and the
// "all resolved" barrier used for request completion.
package resolutioncache

import (
	"sync"

	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolver"
)

// OnErrorFunc reports an UnableToResolve that escaped every resolver
// strategy for one specifier.
type OnErrorFunc func(from *module.Module, specifier string, err error)

// OnProgressFunc is invoked once a Resolution's reload has settled every
// specifier in its current dependency list.
type OnProgressFunc func(resolved []*module.Module, res *Resolution)

// ResolutionCache owns every Resolution and the inverse-dependency
// ("dependers") index for one DependencyGraph instance.
type ResolutionCache struct {
	resolver *resolver.Resolver

	mu          sync.Mutex
	resolutions map[*module.Module]*Resolution
	dependers   map[*module.Module]map[*module.Module]bool
	pinned      map[*Resolution]bool
	dirty       map[*Resolution]bool

	resolvingCount int
	resolvedCh     chan struct{}

	listenersMu    sync.Mutex
	nextListenerID int
	didCreate      map[int]func(*module.Module)
	didDelete      map[int]func(*module.Module)
}

// New builds an empty ResolutionCache bound to r, which every Resolution
// uses to resolve its specifiers.
func New(r *resolver.Resolver) *ResolutionCache {
	closed := make(chan struct{})
	close(closed)
	return &ResolutionCache{
		resolver:    r,
		resolutions: make(map[*module.Module]*Resolution),
		dependers:   make(map[*module.Module]map[*module.Module]bool),
		pinned:      make(map[*Resolution]bool),
		dirty:       make(map[*Resolution]bool),
		resolvedCh:  closed,
		didCreate:   make(map[int]func(*module.Module)),
		didDelete:   make(map[int]func(*module.Module)),
	}
}

// OnDidCreate subscribes to Resolution creation, returning an id for a
// matching OffDidCreate call once the subscriber (a Response) is done
// with the cache.
func (c *ResolutionCache) OnDidCreate(fn func(*module.Module)) int {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextListenerID++
	id := c.nextListenerID
	c.didCreate[id] = fn
	return id
}

// OnDidDelete subscribes to Resolution deletion, returning an id for
// OffDidDelete.
func (c *ResolutionCache) OnDidDelete(fn func(*module.Module)) int {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextListenerID++
	id := c.nextListenerID
	c.didDelete[id] = fn
	return id
}

// OffDidCreate removes a subscription registered by OnDidCreate. Removing
// an already-removed or unknown id is a no-op.
func (c *ResolutionCache) OffDidCreate(id int) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.didCreate, id)
}

// OffDidDelete removes a subscription registered by OnDidDelete.
func (c *ResolutionCache) OffDidDelete(id int) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.didDelete, id)
}

func (c *ResolutionCache) fireDidCreate(m *module.Module) {
	c.listenersMu.Lock()
	fns := make([]func(*module.Module), 0, len(c.didCreate))
	for _, fn := range c.didCreate {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (c *ResolutionCache) fireDidDelete(m *module.Module) {
	c.listenersMu.Lock()
	fns := make([]func(*module.Module), 0, len(c.didDelete))
	for _, fn := range c.didDelete {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// GetResolution returns the existing Resolution for m, or creates one and
// fires didCreate.
func (c *ResolutionCache) GetResolution(m *module.Module) *Resolution {
	res, _ := c.getOrCreateResolution(m)
	return res
}

// Lookup returns the existing Resolution for m without creating one.
func (c *ResolutionCache) Lookup(m *module.Module) (*Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.resolutions[m]
	return res, ok
}

// getOrCreateResolution is GetResolution plus a isNew flag, used by
// Resolution.doReload to recurse only into
// Resolutions that did not already exist in the cache (so a cycle's second
// visit is not reloaded again).
func (c *ResolutionCache) getOrCreateResolution(m *module.Module) (*Resolution, bool) {
	c.mu.Lock()
	if res, ok := c.resolutions[m]; ok {
		c.mu.Unlock()
		return res, false
	}
	res := newResolution(m, c, c.resolver)
	c.resolutions[m] = res
	c.mu.Unlock()
	c.fireDidCreate(m)
	return res, true
}

// Pin marks m's Resolution as a request entry point, exempting it from
// garbage collection when its depender set becomes empty (an Open
// Question 1: "delete only when dependers becomes empty").
func (c *ResolutionCache) Pin(m *module.Module) *Resolution {
	res, _ := c.getOrCreateResolution(m)
	c.mu.Lock()
	c.pinned[res] = true
	c.mu.Unlock()
	return res
}

// Unpin releases a prior Pin, allowing normal garbage collection once
// dependers becomes empty.
func (c *ResolutionCache) Unpin(res *Resolution) {
	c.mu.Lock()
	delete(c.pinned, res)
	c.mu.Unlock()
}

// deleteResolution implements the "destroyed on unload or when dependers
// become empty" lifecycle rule: forward edges are removed (this module
// stops being a depender of everything it resolved), and didDelete fires.
func (c *ResolutionCache) deleteResolution(res *Resolution) {
	c.mu.Lock()
	m := res.module
	delete(c.resolutions, m)
	delete(c.pinned, res)
	delete(c.dirty, res)
	c.mu.Unlock()

	for _, dep := range res.snapshotResolved() {
		if dep != nil {
			c.DeleteDepender(dep, m)
		}
	}
	c.fireDidDelete(m)
}

// AddDepender records that depender resolved one of its specifiers to dep
// (invariant: for every edge A -> B, A is in dependers[B]).
func (c *ResolutionCache) AddDepender(dep, depender *module.Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.dependers[dep]
	if !ok {
		set = make(map[*module.Module]bool)
		c.dependers[dep] = set
	}
	set[depender] = true
}

// DeleteDepender removes the A -> B edge (depender -> dep); when dep's
// depender set becomes empty and its Resolution is not pinned as a request
// entry, the Resolution is garbage-collected.
func (c *ResolutionCache) DeleteDepender(dep, depender *module.Module) {
	c.mu.Lock()
	set, ok := c.dependers[dep]
	empty := false
	if ok {
		delete(set, depender)
		empty = len(set) == 0
		if empty {
			delete(c.dependers, dep)
		}
	}
	res, hasRes := c.resolutions[dep]
	pinned := c.pinned[res]
	c.mu.Unlock()

	if empty && hasRes && !pinned {
		c.deleteResolution(res)
	}
}

// Dependers returns the current set of modules depending on m, for tests
// and diagnostics.
func (c *ResolutionCache) Dependers(m *module.Module) []*module.Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.dependers[m]
	out := make([]*module.Module, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}

func (c *ResolutionCache) addDirty(res *Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[res] = true
}

func (c *ResolutionCache) markResolving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvingCount++
	if c.resolvingCount == 1 {
		c.resolvedCh = make(chan struct{})
	}
}

func (c *ResolutionCache) markResolved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvingCount--
	if c.resolvingCount == 0 {
		close(c.resolvedCh)
	}
}

// AllResolved implements the cache-wide barrier: first flushes
// every dirty Resolution (a forced, non-recursive reload), then returns
// the current barrier channel. The channel is closed once resolvingCount
// returns to zero; a subsequent call with nothing in flight returns an
// already-closed channel.
func (c *ResolutionCache) AllResolved(opts module.TransformOptions, onError OnErrorFunc, onProgress OnProgressFunc) <-chan struct{} {
	c.mu.Lock()
	toFlush := make([]*Resolution, 0, len(c.dirty))
	for res := range c.dirty {
		toFlush = append(toFlush, res)
	}
	c.dirty = make(map[*Resolution]bool)
	c.mu.Unlock()

	for _, res := range toFlush {
		res.ReloadRequires(opts, false, true, onError, onProgress)
	}

	c.mu.Lock()
	barrier := c.resolvedCh
	c.mu.Unlock()
	return barrier
}
