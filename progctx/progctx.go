// Package progctx implements utilities for managing the lifetime of the
// lorasim driver process: cancellation, goroutine bookkeeping, and deferred
// cleanup run in reverse registration order.
package progctx

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/openlora/lorasim/logging"
)

// ProgCtx represents the context of the driver program for its whole lifetime.
type ProgCtx struct {
	context.Context
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	routinesLock sync.Mutex
	routines     map[string]int
	deferred     []func()
}

// New creates a new ProgCtx derived from context.Background().
func New() *ProgCtx {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgCtx{
		Context:  ctx,
		cancel:   cancel,
		routines: map[string]int{},
	}
}

// WaitCount returns the number of goroutines currently registered to wait for.
func (ctx *ProgCtx) WaitCount() int {
	ctx.routinesLock.Lock()
	defer ctx.routinesLock.Unlock()

	total := 0
	for _, c := range ctx.routines {
		total += c
	}
	return total
}

// Cancel cancels the program context with a given cause. Only the first call
// has effect; later calls are no-ops.
func (ctx *ProgCtx) Cancel(cause interface{}) {
	if ctx.Err() != nil {
		return
	}

	defer func() { ctx.deferred = nil }()

	ctx.cancel()

	if e, ok := cause.(error); ok {
		logging.Errorf("program exit: %s", errors.Wrap(e, "fatal").Error())
	} else if cause != nil {
		logging.Infof("program exit: %v", cause)
	}

	for i := len(ctx.deferred) - 1; i >= 0; i-- {
		ctx.deferred[i]()
	}
}

// Defer registers a cleanup function to run (in reverse order) when the
// context is canceled.
func (ctx *ProgCtx) Defer(f func()) {
	ctx.deferred = append(ctx.deferred, f)
}

// WaitAdd registers delta goroutines under routine name to be waited for.
func (ctx *ProgCtx) WaitAdd(name string, delta int) {
	ctx.routinesLock.Lock()
	ctx.routines[name] += delta
	ctx.routinesLock.Unlock()
	ctx.wg.Add(delta)
}

// WaitDone marks one goroutine of routine name as finished.
func (ctx *ProgCtx) WaitDone(name string) {
	ctx.routinesLock.Lock()
	ctx.routines[name]--
	ctx.routinesLock.Unlock()
	ctx.wg.Done()
}

// Wait blocks until every registered goroutine has called WaitDone.
func (ctx *ProgCtx) Wait() {
	ctx.wg.Wait()
}
