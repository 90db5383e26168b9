// Package bootstrap groups the fx modules every promptly process shares.
package bootstrap

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/account"
	"github.com/smallbiznis/promptly/internal/auth"
	"github.com/smallbiznis/promptly/internal/authorization"
	"github.com/smallbiznis/promptly/internal/cache"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/credit"
	"github.com/smallbiznis/promptly/internal/events"
	"github.com/smallbiznis/promptly/internal/generation"
	"github.com/smallbiznis/promptly/internal/observability"
	"github.com/smallbiznis/promptly/internal/payment"
	"github.com/smallbiznis/promptly/internal/ratelimit"
	"github.com/smallbiznis/promptly/internal/reconciler"
	"github.com/smallbiznis/promptly/internal/scheduler"
	"github.com/smallbiznis/promptly/internal/subscription"
	"github.com/smallbiznis/promptly/internal/usage"
	"github.com/smallbiznis/promptly/pkg/db"
	"go.uber.org/fx"
)

// Infra is config, logging, tracing, ids, clock and the database pool.
var Infra = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	clock.Module,
)

// Domain is every credit and billing service plus the scheduler.
var Domain = fx.Options(
	ratelimit.Module,
	cache.Module,
	events.Module,
	account.Module,
	credit.Module,
	usage.Module,
	subscription.Module,
	reconciler.Module,
	payment.Module,
	scheduler.Module,
)

// HTTP adds the collaborators only the API process needs.
var HTTP = fx.Options(
	auth.Module,
	authorization.Module,
	generation.Module,
)

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
