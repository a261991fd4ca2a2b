package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/metrics"
	"github.com/assetline/cloudhooks/internal/models"
)

// FunctionHandler implements a callable function. A returned *Error carries
// the caller-facing payload; any other error is reported as an internal error.
type FunctionHandler func(ctx context.Context, req *Request) (any, error)

// TriggerHandler implements a lifecycle hook. Returning a document allows the
// save with that (possibly mutated) object; returning an error rejects it.
type TriggerHandler func(ctx context.Context, req *Request) (models.Document, error)

// Registry maps function names and (class, trigger) pairs to handlers.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]FunctionHandler
	triggers  map[string]TriggerHandler
	log       *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		functions: make(map[string]FunctionHandler),
		triggers:  make(map[string]TriggerHandler),
		log:       log,
	}
}

func triggerKey(class, trigger string) string {
	return class + "/" + trigger
}

// Define registers a function. Registering a name twice panics.
func (r *Registry) Define(name string, h FunctionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.functions[name]; dup {
		panic(fmt.Sprintf("hooks: function %q defined twice", name))
	}
	r.functions[name] = h
}

// BeforeSave registers the beforeSave trigger for class. Registering twice panics.
func (r *Registry) BeforeSave(class string, h TriggerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := triggerKey(class, TriggerBeforeSave)
	if _, dup := r.triggers[key]; dup {
		panic(fmt.Sprintf("hooks: trigger %q defined twice", key))
	}
	r.triggers[key] = h
}

// HasFunction reports whether name is defined.
func (r *Registry) HasFunction(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.functions[name]
	return ok
}

// HasTrigger reports whether a handler exists for class and trigger.
func (r *Registry) HasTrigger(class, trigger string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.triggers[triggerKey(class, trigger)]
	return ok
}

// Functions returns the defined function names, sorted.
func (r *Registry) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Triggers returns the registered "class/trigger" keys, sorted.
func (r *Registry) Triggers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.triggers))
	for key := range r.triggers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RunFunction invokes the named function.
func (r *Registry) RunFunction(ctx context.Context, name string, req *Request) Response {
	r.mu.RLock()
	h, ok := r.functions[name]
	r.mu.RUnlock()

	if !ok {
		return Response{Error: fmt.Sprintf("Invalid function: %q", name)}
	}

	return r.invoke("function", name, func() (any, error) {
		return h(ctx, req)
	})
}

// RunTrigger invokes the trigger registered for class.
func (r *Registry) RunTrigger(ctx context.Context, class, trigger string, req *Request) Response {
	key := triggerKey(class, trigger)

	r.mu.RLock()
	h, ok := r.triggers[key]
	r.mu.RUnlock()

	if !ok {
		return Response{Error: fmt.Sprintf("No %s trigger for class %q", trigger, class)}
	}

	return r.invoke("trigger", key, func() (any, error) {
		obj, err := h(ctx, req)
		if err != nil {
			return nil, err
		}
		return obj, nil
	})
}

// invoke runs fn and converts its result, error or panic into one response.
func (r *Registry) invoke(kind, name string, fn func() (any, error)) (resp Response) {
	start := time.Now()
	outcome := "success"

	logger := r.log.WithFields(logrus.Fields{"kind": kind, "hook": name})

	defer func() {
		if p := recover(); p != nil {
			logger.WithFields(logrus.Fields{
				"panic": p,
				"stack": string(debug.Stack()),
			}).Error("hook panicked")
			resp = Response{Error: InternalErrorMessage}
			outcome = "panic"
		}

		elapsed := time.Since(start)
		metrics.HookInvocations.WithLabelValues(kind, name, outcome).Inc()
		metrics.HookDuration.WithLabelValues(kind, name).Observe(elapsed.Seconds())
		logger.WithFields(logrus.Fields{
			"outcome":     outcome,
			"duration_ms": elapsed.Milliseconds(),
		}).Debug("hook invoked")
	}()

	v, err := fn()
	if err != nil {
		payload, known := payloadOf(err)
		if known {
			outcome = "rejected"
			logger.WithError(err).Info("hook rejected request")
		} else {
			outcome = "error"
			logger.WithError(err).Error("hook failed")
			metrics.ErrorsTotal.WithLabelValues("hook").Inc()
		}
		return Response{Error: payload}
	}

	return Response{Success: v}
}
