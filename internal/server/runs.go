package server

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// ErrRunActive is returned by RunManager.Start while another run is in
// progress.
var ErrRunActive = stderrors.New("a run is already in progress")

// Engine runs a goal to completion.
type Engine interface {
	Run(ctx context.Context, goal string) (*auto.Result, error)
}

// RunManager runs at most one goal at a time in the background and tracks
// the plan it is working on.
type RunManager struct {
	engine Engine
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	active   bool
	current  string
	last     *auto.RunOutput
	onFinish func(*auto.RunOutput)
}

// NewRunManager creates a manager for engine. Wire PlanSaved into the
// engine's OnPlanSaved hook so Current reports the running plan.
func NewRunManager(engine Engine, logger *log.Logger) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		engine: engine,
		logger: log.OrDefault(logger).WithGroup("runs"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins running goal in the background.
func (m *RunManager) Start(goal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return ErrRunActive
	}
	if err := m.ctx.Err(); err != nil {
		return err
	}
	m.active = true
	m.current = ""
	engine, onFinish := m.engine, m.onFinish

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.logger.Info("run started", "goal", goal)
		res, err := engine.Run(m.ctx, goal)
		out := auto.NewRunOutput(res, err)
		if err != nil {
			m.logger.WithError(err).Warn("run ended with error", "goal", goal, "status", out.Status)
		} else {
			m.logger.Info("run finished", "goal", goal, "status", out.Status)
		}

		if onFinish != nil {
			onFinish(out)
		}

		m.mu.Lock()
		m.active = false
		m.last = out
		m.mu.Unlock()
	}()
	return nil
}

// OnFinish registers fn to receive the outcome of every run that finishes
// after the call.
func (m *RunManager) OnFinish(fn func(*auto.RunOutput)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = fn
}

// PlanSaved records the id of the plan the active run stored.
func (m *RunManager) PlanSaved(id string, _ *task.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = id
}

// Current returns the id of the most recently saved plan.
func (m *RunManager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != ""
}

// Active reports whether a run is in progress.
func (m *RunManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Last returns the outcome of the most recently finished run.
func (m *RunManager) Last() *auto.RunOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Stop cancels the active run and waits for it to return. No run can be
// started afterwards.
func (m *RunManager) Stop() {
	m.cancel()
	m.wg.Wait()
}
