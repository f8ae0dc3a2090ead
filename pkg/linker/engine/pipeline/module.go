package pipeline

import (
	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/core/match"
	"github.com/tigerroll/imagelink/pkg/linker/engine/step/retry"
	"github.com/tigerroll/imagelink/pkg/linker/engine/step/skip"
)

// Module provides the Orchestrator together with its matcher and its skip and retry policy factories.
var Module = fx.Options(
	fx.Provide(
		match.NewMatcher,
		skip.NewDefaultSkipPolicyFactory,
		retry.NewDefaultRetryPolicyFactory,
		NewOrchestrator,
	),
)
