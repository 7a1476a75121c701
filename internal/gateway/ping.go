package gateway

import (
	"context"

	"github.com/xynes/accounts-service/internal/actions"
)

// ActionPing is a connectivity check that exercises the full header policy.
const ActionPing = "accounts.ping"

// PingResult is the response of accounts.ping.
type PingResult struct {
	Pong bool `json:"pong"`
}

// RegisterPing adds accounts.ping to b.
func RegisterPing(b *actions.Builder) {
	b.Register(ActionPing, actions.Typed(actions.Policy{}, func(context.Context, actions.Empty, actions.Context) (interface{}, error) {
		return PingResult{Pong: true}, nil
	}))
}
