package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events into this package's leveled output.
// Wiring noise (provides, invokes, hooks) goes to DEBUG; failures go to ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		hookResult("OnStart", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuted:
		hookResult("OnStop", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", shortFuncName(e.ConstructorName), e.Err)
			return
		}
		Debugf("fx: provided %s", strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", shortFuncName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Infof("Received %s, shutting down", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Infof("Image linker started.")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: custom logger initialization failed: %v", e.Err)
		}
	}
}

func hookResult(kind, fn, runtime string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed after %s: %v", kind, shortFuncName(fn), runtime, err)
		return
	}
	Debugf("fx: %s hook %s done in %s", kind, shortFuncName(fn), runtime)
}

// shortFuncName drops anonymous function suffixes (".func1") and the import path prefix
// from fx function names.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return name
}
