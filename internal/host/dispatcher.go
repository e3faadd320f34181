// Package host integrates with the application that loads the artifact: it marshals every
// host call onto a single goroutine and drives the host through configured commands.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDispatcherClosed is returned by Do after Close.
var ErrDispatcherClosed = errors.New("host dispatcher is closed")

type call struct {
	fn     func() error
	result chan error
}

// Dispatcher runs host calls one at a time on its own goroutine. Timer and watcher
// goroutines never touch the host directly; they go through Do.
type Dispatcher struct {
	calls     chan call
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		calls: make(chan call),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case c := <-d.calls:
			c.result <- invoke(c.fn)
		case <-d.quit:
			return
		}
	}
}

func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host call panicked: %v", r)
		}
	}()
	return fn()
}

// Do runs fn on the dispatcher goroutine and waits for it to return. ctx only bounds the
// wait for the dispatcher to accept the call; an accepted call always runs to completion.
// fn must not call Do.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	c := call{fn: fn, result: make(chan error, 1)}
	select {
	case d.calls <- c:
	case <-d.quit:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.result
}

// Close stops the dispatcher after the running call, if any, returns. Safe to call twice.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	<-d.done
}
