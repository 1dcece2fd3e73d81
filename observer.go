package pipebus

import (
	"github.com/trickstertwo/xlog"
)

// Observer receives bus lifecycle events. Implementations should be
// non-blocking; slow observers are isolated behind the async pool.
type Observer interface {
	OnBusEvent(e BusEvent)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnBusEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits bus events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnBusEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("address", e.Address),
		xlog.Str("origin", e.Origin),
		xlog.Str("event_id", e.EventID),
	)
	switch e.Type {
	case EventError, EventStallWarning:
		ev.Warn().Err(e.Err).Msg("pipebus event")
	case EventDropped:
		ev.Debug().Err(e.Err).Msg("pipebus event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("pipebus event")
	}
}
