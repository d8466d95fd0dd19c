package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// TaskError is returned by Runner.Wait when a task exits with an error.
type TaskError struct {
	Task string
	Err  error
}

// Error implements error.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

type taskExit struct {
	name string
	err  error
}

// Runner runs the fixed set of system tasks and collects their exits.
type Runner struct {
	Context context.Context
	Tasks   []Runnable

	exitCh  chan taskExit
	forceCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		exitCh:  make(chan taskExit, 1),
		forceCh: make(chan struct{}),
	}
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.forceCh)
	}()
	return r
}

// Add lets TaskAdders register their tasks.
func (r *Runner) Add(adders ...TaskAdder) *Runner {
	for _, adder := range adders {
		adder.AddTasks(r)
	}
	return r
}

// Go spawns tasks with the runner context.
func (r *Runner) Go(tasks ...Runnable) *Runner {
	return r.GoWith(r.Context, tasks...)
}

// GoWith spawns tasks with a specified context.
func (r *Runner) GoWith(ctx context.Context, tasks ...Runnable) *Runner {
	for _, task := range tasks {
		var name string
		if named, ok := task.(Named); ok {
			name = named.Name()
		} else {
			name = strconv.Itoa(len(r.Tasks))
		}
		r.Tasks = append(r.Tasks, task)
		glog.V(4).Infof("start task[%s]", name)
		go func(task Runnable, name string) {
			glog.V(4).Infof("task[%s] started", name)
			err := task.Run(ctx)
			glog.V(4).Infof("task[%s] stopped: %v", name, err)
			r.exitCh <- taskExit{name: name, err: err}
		}(task, name)
	}
	return r
}

// Wait waits until all tasks stop and aggregates errors.
// Context cancellation is a normal exit and is not reported.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Tasks {
		select {
		case <-r.forceCh:
			return errors.New("forced exit")
		case exit := <-r.exitCh:
			if exit.err != nil && !errors.Is(exit.err, context.Canceled) {
				errs.Add(&TaskError{Task: exit.name, Err: exit.err})
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWithContext is simplified form with no cancel callback.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser is a convenient wrapper for RunWithContextCancel and
// ensures closer.Close is either called on cancel or exit of fn.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
