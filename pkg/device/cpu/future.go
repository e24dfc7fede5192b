package cpu

import (
	"sync/atomic"

	"github.com/blospray-dev/blospray/pkg/device"
)

type future struct {
	done     chan struct{}
	canceled atomic.Bool
	err      error
}

var _ device.Future = (*future)(nil)

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) finish(err error) {
	f.err = err
	close(f.done)
}

func (f *future) Done() <-chan struct{} { return f.done }

func (f *future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *future) Wait() { <-f.done }

func (f *future) Cancel() { f.canceled.Store(true) }

func (f *future) Err() error {
	if !f.IsReady() {
		return nil
	}
	return f.err
}

func (f *future) Release() {}
