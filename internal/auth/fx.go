package auth

import (
	"github.com/smallbiznis/promptly/internal/auth/cronsecret"
	"github.com/smallbiznis/promptly/internal/auth/verifier"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(verifier.Provide),
	fx.Provide(cronsecret.Provide),
)
