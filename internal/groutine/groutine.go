package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine labelled with name for profiles and GetName.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "goble-read-2a37", func(ctx context.Context) {
//	    // work
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}

// Group tracks named goroutines so their owner can wait for them to finish
type Group struct {
	ctx    context.Context
	prefix string
	wg     sync.WaitGroup
}

// NewGroup creates a group whose goroutines inherit ctx and are named "<prefix>-<name>"
func NewGroup(ctx context.Context, prefix string) *Group {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Group{ctx: ctx, prefix: prefix}
}

// Go starts fn on a named goroutine tracked by the group
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	if g.prefix != "" {
		name = g.prefix + "-" + name
	}
	g.wg.Add(1)
	Go(g.ctx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Wait blocks until every goroutine started by the group has returned
func (g *Group) Wait() {
	g.wg.Wait()
}
