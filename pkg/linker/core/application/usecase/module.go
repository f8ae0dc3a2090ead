package usecase

import (
	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/engine/pipeline"
)

// Module provides the asynchronous JobLauncher and the TriggerService. Active runs are
// cancelled and awaited on stop.
var Module = fx.Options(
	fx.Provide(
		func(o *pipeline.Orchestrator) Runner { return o },
		NewSimpleJobLauncher,
		func(l *SimpleJobLauncher) JobLauncher { return l },
		NewTriggerService,
	),
	fx.Invoke(func(lc fx.Lifecycle, l *SimpleJobLauncher) {
		lc.Append(fx.Hook{OnStop: l.Shutdown})
	}),
)

// InlineModule provides a JobLauncher that runs in the caller's goroutine, used by the run
// command.
var InlineModule = fx.Options(
	fx.Provide(
		func(o *pipeline.Orchestrator) Runner { return o },
		NewInlineLauncher,
		func(l *InlineLauncher) JobLauncher { return l },
		NewTriggerService,
	),
)
