// Package actions holds the action registry and the request context every
// action receives.
package actions

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/xynes/accounts-service/pkg/apperr"
)

// Policy controls how the boundary treats an action.
type Policy struct {
	// Public actions do not require X-XS-User-Id.
	Public bool
	// WorkspaceUnscoped actions do not require X-Workspace-Id.
	WorkspaceUnscoped bool
	// Created actions respond with 201 on success.
	Created bool
}

// Action is a registered handler with its payload decoder.
type Action struct {
	Policy Policy
	decode func(raw json.RawMessage) (interface{}, error)
	handle func(ctx context.Context, payload interface{}, actx Context) (interface{}, error)
}

// Typed builds an Action whose payload is strictly decoded into P and then
// validated against P's struct tags.
func Typed[P any](policy Policy, fn func(ctx context.Context, payload P, actx Context) (interface{}, error)) Action {
	return Action{
		Policy: policy,
		decode: func(raw json.RawMessage) (interface{}, error) {
			var p P
			if err := Decode(raw, &p); err != nil {
				return nil, err
			}
			return p, nil
		},
		handle: func(ctx context.Context, payload interface{}, actx Context) (interface{}, error) {
			return fn(ctx, payload.(P), actx)
		},
	}
}

// Builder collects registrations before the dispatcher is frozen.
type Builder struct {
	actions map[string]Action
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{actions: make(map[string]Action)}
}

// Register adds an action. A later registration for the same key replaces
// the earlier one.
func (b *Builder) Register(key string, action Action) *Builder {
	b.actions[key] = action
	return b
}

// Build returns an immutable dispatcher. The builder may keep being used
// without affecting dispatchers built earlier.
func (b *Builder) Build() *Dispatcher {
	actions := make(map[string]Action, len(b.actions))
	for k, v := range b.actions {
		actions[k] = v
	}
	return &Dispatcher{actions: actions}
}

// Dispatcher routes action keys to handlers. It is read-only and safe for
// concurrent use.
type Dispatcher struct {
	actions map[string]Action
}

// Policy returns the policy of a registered action.
func (d *Dispatcher) Policy(key string) (Policy, bool) {
	a, ok := d.actions[key]
	return a.Policy, ok
}

// Keys returns the registered action keys in sorted order.
func (d *Dispatcher) Keys() []string {
	keys := make([]string, 0, len(d.actions))
	for k := range d.actions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dispatch decodes raw against the action's schema and runs its handler.
// The handler is never invoked when the payload is invalid.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, raw json.RawMessage, actx Context) (interface{}, error) {
	a, ok := d.actions[key]
	if !ok {
		return nil, UnknownAction(key)
	}
	payload, err := a.decode(raw)
	if err != nil {
		return nil, err
	}
	return a.handle(ctx, payload, actx)
}

// UnknownAction is the error returned for unregistered keys.
func UnknownAction(key string) error {
	return apperr.New(apperr.KindUnknownAction, "Unknown action: "+key)
}
