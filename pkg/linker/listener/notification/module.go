package notification

import (
	"context"

	"go.uber.org/fx"
)

// NewNotifier combines the log notifier and the broadcaster.
func NewNotifier(logNotifier *LogNotifier, broadcaster *Broadcaster) Notifier {
	return Multi{logNotifier, broadcaster}
}

// Module provides the Notifier used by the pipeline and the Broadcaster read by the
// events endpoint.
var Module = fx.Options(
	fx.Provide(NewLogNotifier, NewBroadcaster, NewNotifier),
	fx.Invoke(func(lc fx.Lifecycle, b *Broadcaster) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			b.Close()
			return nil
		}})
	}),
)
