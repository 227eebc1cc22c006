package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"ledgercore/pkg/datamodel"
)

// Committer is implemented by datastores that persist their state on demand.
type Committer interface {
	Commit(ctx context.Context) error
}

// Service errors.
var (
	ErrNotOpen       = errors.New("core: no open session")
	ErrAlreadyOpen   = errors.New("core: session already open")
	ErrNothingToUndo = errors.New("core: nothing to undo")
	ErrNothingToRedo = errors.New("core: nothing to redo")
	ErrCommitFailed  = errors.New("core: commit failed")
)

// Service installs plugins, opens a session over a datastore and keeps the
// undo/redo history of the operations executed through it. Calls are
// serialised; the session underneath remains single-writer.
type Service struct {
	registry *datamodel.Registry
	store    datamodel.Datastore

	clock        Clock
	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	audit        AuditRecorder
	historyLimit int

	mu        sync.Mutex
	session   *datamodel.Session
	plugins   map[string]PluginMetadata
	listeners []datamodel.SessionListener
	done      []*datamodel.DataOperation
	undone    []*datamodel.DataOperation
}

// NewService constructs a service over reg and store. Plugins must be
// installed before Open seals the registry.
func NewService(reg *datamodel.Registry, store datamodel.Datastore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{
		registry:     reg,
		store:        store,
		clock:        o.clock,
		logger:       o.logger,
		metrics:      o.metrics,
		tracer:       o.tracer,
		audit:        o.audit,
		historyLimit: o.historyLimit,
		plugins:      make(map[string]PluginMetadata),
	}
}

// Registry returns the datamodel registry.
func (s *Service) Registry() *datamodel.Registry { return s.registry }

// Store returns the underlying datastore.
func (s *Service) Store() datamodel.Datastore { return s.store }

// Session returns the open session, or nil.
func (s *Service) Session() *datamodel.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// InstallPlugin registers a plugin, applying its contributions to the
// datamodel registry.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}
	if s.registry.Sealed() {
		return PluginMetadata{}, fmt.Errorf("install plugin %s: %w", plugin.Name(), datamodel.ErrRegistryClosed)
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}
	if err := registry.apply(s.registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("install plugin %s: %w", plugin.Name(), err)
	}
	s.listeners = append(s.listeners, registry.Listeners()...)

	meta := newPluginMetadata(plugin, registry)
	s.plugins[plugin.Name()] = meta
	s.logger.Info("plugin installed", "plugin", meta.Name, "version", meta.Version, "property_sets", len(meta.PropertySets))
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by
// name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Open seals the registry and opens the session rooted at rootSet. Plugin
// listeners are attached to the new session.
func (s *Service) Open(ctx context.Context, rootSet *datamodel.PropertySet) (*datamodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && !s.session.Closed() {
		return nil, ErrAlreadyOpen
	}
	var session *datamodel.Session
	err := s.run(ctx, "open", rootSetID(rootSet), func(context.Context) error {
		opened, err := datamodel.OpenSession(s.registry, s.store, rootSet)
		if err != nil {
			return err
		}
		for _, l := range s.listeners {
			opened.AddListener(l)
		}
		session = opened
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.session = session
	s.done, s.undone = nil, nil
	return session, nil
}

// Close closes the session and drops the history.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
	}
	s.session = nil
	s.done, s.undone = nil, nil
}

// Execute runs op as a new undoable operation. The redo stack is cleared and
// the oldest entries are dropped once the history limit is reached. An
// operation merged into a recording already in progress is not tracked.
func (s *Service) Execute(ctx context.Context, op datamodel.Operation) (*datamodel.DataOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNotOpen
	}
	data := datamodel.NewDataOperation(s.session, op)
	err := s.run(ctx, "execute", data.Name(), func(ctx context.Context) error {
		if err := data.Execute(ctx); err != nil {
			return err
		}
		if !data.Merged() {
			s.done = append(s.done, data)
			if over := len(s.done) - s.historyLimit; over > 0 {
				s.done = slices.Delete(s.done, 0, over)
			}
			s.undone = nil
		}
		return s.commit(ctx)
	})
	if err != nil && data.State() != datamodel.StateExecuted {
		return nil, err
	}
	return data, err
}

// Undo reverses the most recent operation. A failed undo leaves the
// operation on the undo stack.
func (s *Service) Undo(ctx context.Context) (*datamodel.DataOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNotOpen
	}
	if len(s.done) == 0 {
		return nil, ErrNothingToUndo
	}
	op := s.done[len(s.done)-1]
	err := s.run(ctx, "undo", op.Name(), func(ctx context.Context) error {
		if err := op.Undo(ctx); err != nil {
			return err
		}
		s.done = s.done[:len(s.done)-1]
		s.undone = append(s.undone, op)
		return s.commit(ctx)
	})
	return op, err
}

// Redo reapplies the most recently undone operation.
func (s *Service) Redo(ctx context.Context) (*datamodel.DataOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNotOpen
	}
	if len(s.undone) == 0 {
		return nil, ErrNothingToRedo
	}
	op := s.undone[len(s.undone)-1]
	err := s.run(ctx, "redo", op.Name(), func(ctx context.Context) error {
		if err := op.Redo(ctx); err != nil {
			return err
		}
		s.undone = s.undone[:len(s.undone)-1]
		s.done = append(s.done, op)
		return s.commit(ctx)
	})
	return op, err
}

// CanUndo reports whether an operation is available to undo.
func (s *Service) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done) > 0
}

// CanRedo reports whether an undone operation is available to redo.
func (s *Service) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undone) > 0
}

// History returns the undoable operations, oldest first.
func (s *Service) History() []*datamodel.DataOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.done)
}

// Commit persists the datastore when it supports it. Execute, Undo and Redo
// commit on their own; Commit retries after a reported ErrCommitFailed.
func (s *Service) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, "commit", "", s.commit)
}

func (s *Service) commit(ctx context.Context) error {
	c, ok := s.store.(Committer)
	if !ok {
		return nil
	}
	if err := c.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}

// run wraps a service action with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, action, name string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, action)
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, action, err == nil, duration)

	entry := AuditEntry{Action: action, Operation: name, Status: AuditStatusSuccess, StartedAt: start, Duration: duration}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("service action failed", "action", action, "operation", name, "error", err)
	} else {
		s.logger.Debug("service action completed", "action", action, "operation", name, "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}

func rootSetID(ps *datamodel.PropertySet) string {
	if ps == nil {
		return ""
	}
	return ps.ID()
}
