// Package postprocess runs follow-up automation for claims the backend
// accepted.
package postprocess

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// ErrNoHandler is returned when no handler is registered for an action
var ErrNoHandler = eris.New("no post-process handler for action")

// Strategy performs the follow-up step for one submitted claim. res carries
// the backend-assigned case identifier.
type Strategy interface {
	Handle(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error
}

// StrategyFunc adapts a function to Strategy
type StrategyFunc func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error

// Handle calls f
func (f StrategyFunc) Handle(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
	return f(ctx, rec, res)
}

// Dispatcher resolves a claim's action tag to the handler registered for it
type Dispatcher struct {
	handlers map[model.PostProcessAction]Strategy
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[model.PostProcessAction]Strategy)}
}

// Register sets the handler for action
func (d *Dispatcher) Register(action model.PostProcessAction, s Strategy) *Dispatcher {
	d.handlers[action] = s
	return d
}

// Handle runs the handler for the claim's action
func (d *Dispatcher) Handle(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
	action := rec.Metadata.PostProcess
	h, ok := d.handlers[action]
	if !ok {
		return eris.Wrapf(ErrNoHandler, "%q", action)
	}
	return h.Handle(ctx, rec, res)
}
