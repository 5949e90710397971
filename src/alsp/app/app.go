// Package app wires the assist-lsp session daemon together.
package app

import (
	"context"
	"time"

	serversession "github.com/acornide/assist-lsp/src/alsp/controller/server-session"
	"github.com/acornide/assist-lsp/src/alsp/gateway/credentials"
	ideclient "github.com/acornide/assist-lsp/src/alsp/gateway/ide-client"
	"github.com/acornide/assist-lsp/src/alsp/internal/core"
	"github.com/acornide/assist-lsp/src/alsp/internal/fs"
	"github.com/acornide/assist-lsp/src/alsp/internal/launcher"
	"github.com/acornide/assist-lsp/src/alsp/internal/portfile"
	"github.com/acornide/assist-lsp/src/alsp/internal/requestmux"
	"github.com/acornide/assist-lsp/src/alsp/internal/rpcclient"
	"github.com/acornide/assist-lsp/src/alsp/internal/serverinfofile"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
)

// Module defines the assist-lsp application module.
var Module = fx.Options(
	core.ConfigModule,
	core.LoggerModule,
	fs.Module,
	launcher.Module,
	portfile.Module,
	rpcclient.Module,
	requestmux.Module,
	serverinfofile.Module,
	credentials.Module,
	ideclient.Module,
	serversession.Module,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "alsp",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Invoke(func(serversession.Controller) {}),
)
