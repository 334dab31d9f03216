// Package framework runs the long-lived services of a daemon.
package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// Runnable defines a background service.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// ErrForcedExit is returned by Wait when a second stop signal arrives.
var ErrForcedExit = errors.New("forced exit")

type result struct {
	name string
	err  error
}

// Runner starts services, stops all of them once any one returns, and
// collects their errors.
type Runner struct {
	ctx    context.Context
	cancel func()
	count  int
	doneCh chan result
	exitCh chan struct{}
}

// NewRunner creates a Runner under ctx.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{
		doneCh: make(chan result),
		exitCh: make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r
}

// Context returns the context passed to services.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// HandleSignals stops services on SIGINT/SIGTERM. A second signal makes
// Wait return without waiting for services.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go starts a named service.
func (r *Runner) Go(name string, service Runnable) *Runner {
	r.count++
	glog.V(4).Infof("start %s", name)
	go func() {
		err := service.Run(r.ctx)
		glog.V(4).Infof("%s stopped: %v", name, err)
		r.doneCh <- result{name: name, err: err}
	}()
	return r
}

// Stop cancels all services.
func (r *Runner) Stop() {
	r.cancel()
}

// Wait waits for all services. The first service to return stops the
// others. Cancellation errors are not reported.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for ; r.count > 0; r.count-- {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case res := <-r.doneCh:
			r.cancel()
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				glog.Errorf("%s: %v", res.name, res.err)
				errs.Add(res.err)
			}
		}
	}
	return errs.Aggregate()
}

// CloseOnCancel closes c once ctx is done, unblocking fn, and returns the
// result of fn. c is always closed when fn returns.
func CloseOnCancel(ctx context.Context, c io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		c.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		c.Close()
		return err
	}
}
