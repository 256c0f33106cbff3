// Package bus carries release commands between processes over the
// go-command dispatcher. Delivery is fire-and-forget: the broadcasting
// process receives its own commands, receivers tolerate duplicates, and
// an unavailable transport surfaces as an error the caller may log and
// ignore without failing the surrounding operation.
package bus

import (
	"context"
	"fmt"
	"strings"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"

	"github.com/ChasLui/nocodb/command"
	"github.com/ChasLui/nocodb/core"
)

type DispatchFunc func(ctx context.Context, msg command.ReleaseSourceMessage) error

type Option func(*GoCommandReleaseBus)

// GoCommandReleaseBus publishes release commands through the process
// dispatcher. Queue resolvers registered on the command registry extend
// the same messages across process boundaries.
type GoCommandReleaseBus struct {
	dispatch DispatchFunc
}

func WithDispatchFunc(dispatch DispatchFunc) Option {
	return func(b *GoCommandReleaseBus) {
		if dispatch != nil {
			b.dispatch = dispatch
		}
	}
}

func NewGoCommandReleaseBus(opts ...Option) *GoCommandReleaseBus {
	releaseBus := &GoCommandReleaseBus{
		dispatch: func(ctx context.Context, msg command.ReleaseSourceMessage) error {
			return commanddispatcher.Dispatch(ctx, msg)
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(releaseBus)
	}
	return releaseBus
}

func (b *GoCommandReleaseBus) BroadcastToWorkers(ctx context.Context, cmd core.ReleaseCommand) error {
	return b.send(ctx, cmd, core.ReleaseScopeWorkers)
}

func (b *GoCommandReleaseBus) SendToPrimary(ctx context.Context, cmd core.ReleaseCommand) error {
	return b.send(ctx, cmd, core.ReleaseScopePrimary)
}

func (b *GoCommandReleaseBus) send(ctx context.Context, cmd core.ReleaseCommand, scope core.ReleaseScope) error {
	if b == nil || b.dispatch == nil {
		return fmt.Errorf("bus: release bus is not configured")
	}
	msg := command.ReleaseSourceMessage{
		SourceID: strings.TrimSpace(cmd.SourceID),
		Reason:   strings.TrimSpace(cmd.Reason),
		Scope:    scope,
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return b.dispatch(ctx, msg)
}

// SubscribeReleaseHandler registers the receiver side for one process
// role. Messages scoped to the other role are skipped; an empty scope
// is delivered everywhere.
func SubscribeReleaseHandler(role core.ReleaseScope, releaser core.ConnectionReleaser) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(&scopedReleaseHandler{
		role:    role,
		handler: command.NewReleaseSourceCommand(releaser),
	})
}

type scopedReleaseHandler struct {
	role    core.ReleaseScope
	handler *command.ReleaseSourceCommand
}

func (h *scopedReleaseHandler) Execute(ctx context.Context, msg command.ReleaseSourceMessage) error {
	if h == nil || h.handler == nil {
		return nil
	}
	if msg.Scope != "" && h.role != "" && msg.Scope != h.role {
		return nil
	}
	return h.handler.Execute(ctx, msg)
}

var _ core.ReleaseBus = (*GoCommandReleaseBus)(nil)
