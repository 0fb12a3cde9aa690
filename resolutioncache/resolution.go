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

package resolutioncache

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolver"
)

// reloadConcurrency bounds the number of specifiers resolved concurrently
// by one Resolution's reload, a semaphore-capped goroutine fan-out.
const reloadConcurrency = 8

// inflightTask is one specifier's in-flight (or just-settled) resolve
// call. A reload reuses a still-live task for a specifier that also
// appeared in the previous requires list (prefix-stable reuse), instead of
// re-resolving it.
type inflightTask struct {
	mu      sync.Mutex
	done    chan struct{}
	module  *module.Module
	err     error
	aborted bool
}

func (t *inflightTask) abort() {
	t.mu.Lock()
	t.aborted = true
	t.mu.Unlock()
}

func (t *inflightTask) wait() (*module.Module, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.module, t.err
}

func (t *inflightTask) settle(m *module.Module, err error) {
	t.mu.Lock()
	t.module, t.err = m, err
	t.mu.Unlock()
	close(t.done)
}

// Resolution is the per-module record: the module's current
// resolved dependency edges (specifier -> Module), plus the machinery to
// reload those edges when the module's source changes.
type Resolution struct {
	module   *module.Module
	cache    *ResolutionCache
	resolver *resolver.Resolver

	mu        sync.Mutex
	resolving bool
	barrier   chan struct{}

	requires map[string]*inflightTask // specifier -> task, from the last completed reload
}

func newResolution(m *module.Module, cache *ResolutionCache, r *resolver.Resolver) *Resolution {
	closed := make(chan struct{})
	close(closed)
	return &Resolution{
		module:   m,
		cache:    cache,
		resolver: r,
		barrier:  closed,
		requires: make(map[string]*inflightTask),
	}
}

// Module returns the module this Resolution tracks.
func (res *Resolution) Module() *module.Module { return res.module }

// snapshotResolved returns every module this Resolution currently resolves
// to, for depender-edge teardown on deletion.
func (res *Resolution) snapshotResolved() []*module.Module {
	res.mu.Lock()
	defer res.mu.Unlock()
	out := make([]*module.Module, 0, len(res.requires))
	for _, task := range res.requires {
		task.mu.Lock()
		m, err := task.module, task.err
		task.mu.Unlock()
		if err == nil && m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Resolved returns the specifier -> Module map from the last completed
// reload, skipping specifiers that failed to resolve.
func (res *Resolution) Resolved() map[string]*module.Module {
	res.mu.Lock()
	defer res.mu.Unlock()
	out := make(map[string]*module.Module, len(res.requires))
	for spec, task := range res.requires {
		task.mu.Lock()
		m, err := task.module, task.err
		task.mu.Unlock()
		if err == nil && m != nil {
			out[spec] = m
		}
	}
	return out
}

// MarkDirty flags this Resolution for the next AllResolved flush, per
// the change-driven invalidation path (a watched file changed,
// but nothing has asked for it to be reloaded yet).
func (res *Resolution) MarkDirty() {
	res.cache.addDirty(res)
}

// ReloadRequires re-extracts the module's dependency specifiers and
// resolves each one, recursing into any newly-discovered Resolution.
// Concurrent calls while a reload is already in flight return the same
// barrier channel rather than starting a second reload (at-most-one-
// in-flight-per-Resolution). With force, every specifier is resolved
// afresh instead of reusing the previous reload's task for it.
func (res *Resolution) ReloadRequires(opts module.TransformOptions, recurse bool, force bool, onError OnErrorFunc, onProgress OnProgressFunc) <-chan struct{} {
	res.mu.Lock()
	if res.resolving {
		barrier := res.barrier
		res.mu.Unlock()
		return barrier
	}
	res.resolving = true
	res.barrier = make(chan struct{})
	barrier := res.barrier
	res.mu.Unlock()

	res.cache.markResolving()
	go func() {
		defer func() {
			res.mu.Lock()
			res.resolving = false
			close(res.barrier)
			res.mu.Unlock()
			res.cache.markResolved()
		}()
		res.doReload(opts, recurse, force, onError, onProgress)
	}()
	return barrier
}

func (res *Resolution) doReload(opts module.TransformOptions, recurse bool, force bool, onError OnErrorFunc, onProgress OnProgressFunc) {
	specifiers, err := res.module.ReadDependencies(opts)
	if err != nil {
		if onError != nil {
			onError(res.module, "", err)
		}
		return
	}

	res.mu.Lock()
	previous := res.requires
	res.mu.Unlock()

	wanted := make(map[string]bool, len(specifiers))
	for _, spec := range specifiers {
		wanted[spec] = true
	}

	// Retire specifiers no longer required: abort their in-flight task (if
	// any) and drop the forward edge once it settles.
	for spec, task := range previous {
		if wanted[spec] {
			continue
		}
		task.abort()
		if m, err := task.wait(); err == nil && m != nil {
			res.cache.DeleteDepender(m, res.module)
		}
	}

	eg := &errgroup.Group{}
	eg.SetLimit(reloadConcurrency)

	next := make(map[string]*inflightTask, len(specifiers))
	var mu sync.Mutex

	for _, spec := range specifiers {
		spec := spec

		// Prefix-stable reuse: a specifier already present in the previous
		// requires list reuses its in-flight (or settled) task instead of
		// re-resolving, unless the reload is forced.
		if task, ok := previous[spec]; ok && !force {
			task.mu.Lock()
			aborted := task.aborted
			task.mu.Unlock()
			if !aborted {
				mu.Lock()
				next[spec] = task
				mu.Unlock()
				continue
			}
		}

		task := &inflightTask{done: make(chan struct{})}
		mu.Lock()
		next[spec] = task
		mu.Unlock()

		eg.Go(func() error {
			m, resolveErr := res.resolver.Resolve(res.module, spec)
			task.settle(m, resolveErr)

			if resolveErr != nil {
				var unresolved *resolver.UnableToResolve
				if errors.As(resolveErr, &unresolved) {
					res.cache.addDirty(res)
					if onError != nil {
						onError(res.module, spec, resolveErr)
					}
					return nil
				}
				return resolveErr
			}

			res.cache.AddDepender(m, res.module)

			if recurse {
				if nested, isNew := res.cache.getOrCreateResolution(m); isNew {
					<-nested.ReloadRequires(opts, true, false, onError, onProgress)
				}
			}
			return nil
		})
	}

	settleErr := eg.Wait()

	res.mu.Lock()
	res.requires = next
	res.mu.Unlock()

	if settleErr != nil {
		if onError != nil {
			onError(res.module, "", settleErr)
		}
		return
	}

	if onProgress != nil {
		onProgress(moduleSliceFromTasks(next), res)
	}
}

func moduleSliceFromTasks(tasks map[string]*inflightTask) []*module.Module {
	out := make([]*module.Module, 0, len(tasks))
	for _, task := range tasks {
		task.mu.Lock()
		m, err := task.module, task.err
		task.mu.Unlock()
		if err == nil && m != nil {
			out = append(out, m)
		}
	}
	return out
}
