package utils

import (
	"context"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	started := make(chan struct{})
	var stopped atomic.Bool
	sw := NewStoppableWorkers(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		stopped.Store(true)
	})
	<-started
	test.That(t, sw.Context().Err(), test.ShouldBeNil)

	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldBeTrue)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	var ran atomic.Bool
	sw.AddWorkers(func(context.Context) { ran.Store(true) })
	sw.Stop()
	test.That(t, ran.Load(), test.ShouldBeFalse)
}

func TestEvery(t *testing.T) {
	var calls atomic.Int32
	sw := NewStoppableWorkers(Every(time.Millisecond, func(context.Context) { calls.Inc() }))
	for calls.Load() < 3 {
		time.Sleep(time.Millisecond)
	}
	sw.Stop()
	n := calls.Load()
	time.Sleep(5 * time.Millisecond)
	test.That(t, calls.Load(), test.ShouldEqual, n)
}
