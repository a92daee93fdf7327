// Package bootstrap assembles the full pipeline in dependency order and
// exposes lifecycle and health reporting over it.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/aggregate"
	"github.com/fyrsmithlabs/commitd/internal/classify"
	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/config"
	"github.com/fyrsmithlabs/commitd/internal/confirm"
	"github.com/fyrsmithlabs/commitd/internal/gitexec"
	"github.com/fyrsmithlabs/commitd/internal/hook"
	"github.com/fyrsmithlabs/commitd/internal/message"
	"github.com/fyrsmithlabs/commitd/internal/orchestrate"
)

// ServiceState is the lifecycle state of one service.
type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateReady         ServiceState = "ready"
	StateError         ServiceState = "error"
	StateDisabled      ServiceState = "disabled"
)

// Health is the aggregate system condition.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// ServiceHealth is the per-service slice of a health report.
type ServiceHealth struct {
	Name  string       `json:"name"`
	State ServiceState `json:"state"`
	Err   string       `json:"error,omitempty"`
}

// Report is a point-in-time system health snapshot.
type Report struct {
	Overall  Health          `json:"overall"`
	Services []ServiceHealth `json:"services"`
	Warnings []string        `json:"warnings,omitempty"`
}

// service is one startup unit. Services start in declaration order; the
// requires list is validated against already-started names.
type service struct {
	name     string
	requires []string
	start    func(ctx context.Context) error
	// optional services record disabled instead of error and do not fail
	// the whole startup.
	optional bool
}

// System owns every pipeline component. Build with New, then Start.
type System struct {
	Root      string
	Config    *config.Config
	Repo      *gitexec.Repo
	Executor  *commit.Executor
	Aggreg    *aggregate.Aggregator
	Orch      *orchestrate.Orchestrator
	Hook      *hook.Hook
	Confirmer confirm.Confirmer

	logger   *zap.Logger
	services []service
	states   map[string]ServiceState
	errors   map[string]string
	started  []string
}

// New builds an unstarted System rooted at dir.
func New(dir string, confirmer confirm.Confirmer, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmer == nil {
		confirmer = confirm.NewConfirmer()
	}

	s := &System{
		Root:      dir,
		Confirmer: confirmer,
		logger:    logger,
		states:    make(map[string]ServiceState),
		errors:    make(map[string]string),
	}
	s.services = []service{
		{name: "config", start: s.startConfig},
		{name: "gitexec", requires: []string{"config"}, start: s.startGitExec},
		{name: "classify", requires: []string{"gitexec"}, start: s.startClassify},
		{name: "message", requires: []string{"config"}, start: s.startMessage},
		{name: "commit", requires: []string{"gitexec", "message"}, start: s.startCommit},
		{name: "orchestrate", requires: []string{"classify", "commit"}, start: s.startOrchestrate},
		{name: "hook", requires: []string{"orchestrate"}, start: s.startHook},
	}
	for _, svc := range s.services {
		s.states[svc.name] = StateUninitialized
	}
	return s
}

// Start initializes every service in dependency order. The first required
// failure stops the sequence; already-started services stay up.
func (s *System) Start(ctx context.Context) error {
	for _, svc := range s.services {
		for _, dep := range svc.requires {
			if s.states[dep] != StateReady {
				s.states[svc.name] = StateError
				s.errors[svc.name] = fmt.Sprintf("dependency %s is %s", dep, s.states[dep])
				return fmt.Errorf("bootstrap: %s requires %s (state %s)", svc.name, dep, s.states[dep])
			}
		}

		s.logger.Debug("starting service", zap.String("service", svc.name))
		if err := svc.start(ctx); err != nil {
			if svc.optional {
				s.states[svc.name] = StateDisabled
				s.errors[svc.name] = err.Error()
				s.logger.Warn("optional service disabled",
					zap.String("service", svc.name), zap.Error(err))
				continue
			}
			s.states[svc.name] = StateError
			s.errors[svc.name] = err.Error()
			return fmt.Errorf("bootstrap: starting %s: %w", svc.name, err)
		}
		s.states[svc.name] = StateReady
		s.started = append(s.started, svc.name)
	}

	s.logger.Info("system started", zap.Int("services", len(s.started)))
	return nil
}

func (s *System) startConfig(ctx context.Context) error {
	s.Config = config.Load(s.Root, s.logger.Named("config"))
	return nil
}

func (s *System) startGitExec(ctx context.Context) error {
	repo, err := gitexec.Open(s.Root, s.logger.Named("gitexec"))
	if err != nil {
		return err
	}
	s.Repo = repo
	if _, err := repo.Version(ctx); err != nil {
		return fmt.Errorf("probing git: %w", err)
	}
	return nil
}

func (s *System) startClassify(ctx context.Context) error {
	// The orchestrator builds its own classifier; this probe only proves
	// the repository supports it.
	_, err := classify.NewClassifier(s.Repo, s.logger.Named("classify"))
	return err
}

func (s *System) startMessage(ctx context.Context) error {
	if s.Config.Automation.MaxMessageLength < message.DefaultMinSubjectLength {
		return fmt.Errorf("max message length %d below minimum subject length",
			s.Config.Automation.MaxMessageLength)
	}
	return nil
}

func (s *System) startCommit(ctx context.Context) error {
	s.Executor = commit.NewExecutor(s.Repo, s.Config.Commit, s.logger.Named("commit"))
	return nil
}

func (s *System) startOrchestrate(ctx context.Context) error {
	orch, err := orchestrate.New(s.Repo, s.Config, s.Confirmer, s.logger.Named("orchestrate"))
	if err != nil {
		return err
	}
	s.Orch = orch
	return nil
}

func (s *System) startHook(ctx context.Context) error {
	agg, err := aggregate.New(stateDir(s.Repo.Root()), s.logger.Named("aggregate"))
	if err != nil {
		return err
	}
	s.Aggreg = agg
	s.Hook = hook.New(s.Config, s.Orch, s.Executor, agg, s.logger.Named("hook"))
	return s.Hook.Register()
}

// Shutdown stops services in reverse start order.
func (s *System) Shutdown(ctx context.Context) {
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		if name == "hook" && s.Hook != nil {
			s.Hook.Unregister()
		}
		s.states[name] = StateUninitialized
		s.logger.Debug("stopped service", zap.String("service", name))
	}
	s.started = nil
	s.logger.Info("system shut down")
}

// States returns a copy of the per-service state map.
func (s *System) States() map[string]ServiceState {
	out := make(map[string]ServiceState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out
}

// HealthCheck probes the running system and aggregates a report. A service
// in error fails the system; warnings degrade it.
func (s *System) HealthCheck(ctx context.Context) *Report {
	report := &Report{Overall: HealthHealthy}

	for _, svc := range s.services {
		sh := ServiceHealth{Name: svc.name, State: s.states[svc.name]}
		if msg, ok := s.errors[svc.name]; ok {
			sh.Err = msg
		}
		report.Services = append(report.Services, sh)

		switch sh.State {
		case StateError:
			report.Overall = HealthFailed
		case StateUninitialized, StateDisabled:
			if report.Overall == HealthHealthy {
				report.Overall = HealthDegraded
			}
		}
	}
	if report.Overall == HealthFailed {
		return report
	}

	if s.Config != nil {
		validation := s.Config.Validate()
		report.Warnings = append(report.Warnings, validation.Warnings...)
		if !validation.Valid {
			report.Warnings = append(report.Warnings, validation.Errors...)
			report.Overall = HealthDegraded
		}
		if !s.Config.Enabled {
			report.Warnings = append(report.Warnings, "automation is disabled")
		}
	}
	if s.Executor != nil {
		state := s.Executor.ValidateRepoState(ctx)
		report.Warnings = append(report.Warnings, state.Warnings...)
		if !state.Ready {
			report.Warnings = append(report.Warnings, state.Issues...)
			report.Overall = HealthDegraded
		}
	}
	if len(report.Warnings) > 0 && report.Overall == HealthHealthy {
		report.Overall = HealthDegraded
	}

	return report
}

func stateDir(root string) string {
	return filepath.Join(root, config.StateDirName)
}
