package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openmined/studiosync/internal/client/metadata"
	"github.com/openmined/studiosync/internal/studiosdk"
)

type recipeListKey struct {
	instance string
	project  string
}

// pass carries the state shared by every item of one reconciliation run:
// the stores to flush at the end and the remote listings already fetched.
type pass struct {
	ctx     context.Context
	engine  *Engine
	summary *Summary
	narrow  bool
	dirty   map[string]*metadata.Store
	lists   map[recipeListKey][]studiosdk.RecipeSummary
	flushed int
}

func newPass(ctx context.Context, e *Engine, narrow bool) *pass {
	return &pass{
		ctx:     ctx,
		engine:  e,
		summary: NewSummary(),
		narrow:  narrow,
		dirty:   make(map[string]*metadata.Store),
		lists:   make(map[recipeListKey][]studiosdk.RecipeSummary),
	}
}

func (p *pass) markDirty(s *metadata.Store) {
	p.dirty[s.Path()] = s
}

// flush writes each dirty store once.
func (p *pass) flush() error {
	paths := make([]string, 0, len(p.dirty))
	for path := range p.dirty {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var errs []error
	for _, path := range paths {
		if err := p.dirty[path].Flush(); err != nil {
			slog.Error("sync", "op", "Flush", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		p.flushed++
	}
	p.dirty = make(map[string]*metadata.Store)
	return errors.Join(errs...)
}

// service resolves instance. Unknown instances are a configuration problem:
// the item is skipped and the reason recorded.
func (p *pass) service(instance, path string) (studiosdk.Service, bool) {
	svc, err := p.engine.remotes.Get(instance)
	if err != nil {
		slog.Warn("sync", "op", OpSkipped, "path", path, "instance", instance, "error", err)
		p.fail(path, OpSkipped, err)
		return nil, false
	}
	return svc, true
}

// recipeList fetches the project's recipe listing once per pass.
func (p *pass) recipeList(svc studiosdk.Service, instance, project string) ([]studiosdk.RecipeSummary, error) {
	key := recipeListKey{instance: instance, project: project}
	if list, ok := p.lists[key]; ok {
		return list, nil
	}
	list, err := svc.Recipes().ListRecipes(p.ctx, project)
	if err != nil {
		return nil, err
	}
	p.lists[key] = list
	return list, nil
}

func (p *pass) fail(path string, op OpType, err error) {
	p.summary.Errors = append(p.summary.Errors, ItemError{Path: path, Op: op, Error: err.Error()})
	p.engine.status.SetError(path, err)
}

func (p *pass) untracked(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.summary.Untracked = append(p.summary.Untracked, msg)
	slog.Info("sync", "op", OpUntrack, "message", msg)
}

func (p *pass) conflict(c *Conflict) {
	p.summary.Conflicts = append(p.summary.Conflicts, c)
	slog.Warn("sync", "type", c.Kind, "op", OpConflict, "path", c.Path)
}
