package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/etools-app/sandbox/internal/executor"
	"github.com/etools-app/sandbox/internal/protocol"
)

// ErrStopped is returned when dispatching to a terminated unit.
var ErrStopped = errors.New("execution unit is stopped")

// dispatchGrace is added on top of the message timeout before the unit is
// declared stuck. The in-VM interrupt normally fires first; the grace only
// matters when the unit is wedged inside a host call.
const dispatchGrace = 250 * time.Millisecond

type request struct {
	msg   protocol.ExecuteMessage
	reply chan response
}

type response struct {
	result protocol.ResultMessage
	fatal  error
}

// Worker is one isolated execution unit: a dedicated goroutine owning a
// goja VM. Communication happens only through messages; no memory is shared
// with plugin code.
type Worker struct {
	ID string

	exec     *executor.Executor
	requests chan request
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorker spawns a unit. emit receives side-channel messages from the
// plugin (logs, notifications).
func NewWorker(emit func(msg any)) *Worker {
	w := &Worker{
		ID:       uuid.New().String()[:8],
		exec:     executor.New(emit),
		requests: make(chan request, 1),
		stop:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case <-w.stop:
			w.exec.Close()
			return
		case req := <-w.requests:
			result, fatal := w.exec.Execute(req.msg)
			req.reply <- response{result: result, fatal: fatal}
		}
	}
}

// Dispatch sends one execute message and waits for the reply, racing it
// against the message timeout. The pool hands a unit to exactly one caller
// at a time, so mutual exclusion is structural; Dispatch never queues.
//
// A non-nil error means the unit must not be reused: it either timed out
// (and was interrupted mid-script), escaped with a fault, or is stuck. The
// accompanying ResultMessage is still valid for the caller.
func (w *Worker) Dispatch(msg protocol.ExecuteMessage) (protocol.ResultMessage, error) {
	reply := make(chan response, 1)

	select {
	case w.requests <- request{msg: msg, reply: reply}:
	case <-w.stop:
		return protocol.Failure("execution unit is stopped", 0), ErrStopped
	}

	timeout := time.Duration(msg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout + dispatchGrace)
	defer timer.Stop()

	select {
	case resp := <-reply:
		return resp.result, resp.fatal
	case <-timer.C:
		// The in-VM interrupt did not get the unit back; it is wedged in
		// a host call. Terminate it outright.
		w.Kill()
		reason := fmt.Sprintf("execution timed out after %s", timeout)
		return protocol.Failure(reason, timeout.Milliseconds()), protocol.ErrTimeout
	case <-w.stop:
		return protocol.Failure("execution unit terminated", 0), ErrStopped
	}
}

// Kill forcibly terminates the unit: the running script is interrupted and
// the goroutine exits. Safe to call multiple times and from any goroutine.
func (w *Worker) Kill() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.exec.Interrupt("worker terminated")
	})
}

// PluginID returns the plugin this unit last executed, the basis for
// sticky affinity.
func (w *Worker) PluginID() string {
	return w.exec.PluginID()
}
