package ipc

import (
	"errors"
	"sync"
)

var (
	ErrBusy     = errors.New("a turn is already running")
	ErrShutdown = errors.New("daemon is shutting down")
)

// Worker runs accepted commands in the background, one at a time.
type Worker struct {
	run func(ControlMessage)

	mu      sync.Mutex
	busy    bool
	closing bool
	wg      sync.WaitGroup
}

func NewWorker(run func(ControlMessage)) *Worker {
	return &Worker{run: run}
}

// Start launches msg unless another command is still running or Shutdown
// was called.
func (w *Worker) Start(msg ControlMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closing {
		return ErrShutdown
	}
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			w.busy = false
			w.mu.Unlock()
		}()
		w.run(msg)
	}()
	return nil
}

// Shutdown refuses new commands and waits for the running one to return.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	w.wg.Wait()
}
