package metrics

import (
	"sync/atomic"

	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/process"
)

var stateCodes = map[events.EventType]int{
	events.ProcessStateStopped:     int(process.Stopped),
	events.ProcessStateStarting:    int(process.Starting),
	events.ProcessStateRunning:     int(process.Running),
	events.ProcessStateTerminating: int(process.Terminating),
	events.ProcessStateRestarting:  int(process.Restarting),
}

// Wire subscribes the collector to bus so every process lifecycle
// event and app add/remove event updates the corresponding metric,
// without any component needing to call the collector directly.
func Wire(bus *events.Bus, c *Collector) {
	var appCount int64

	for eventType, code := range stateCodes {
		code := code
		bus.Subscribe(eventType, func(e events.Event) {
			c.SetProcessState(e.Data["app"], e.Data["process"], code)
			if eventType == events.ProcessStateStarting {
				c.IncProcessStart(e.Data["app"], e.Data["process"])
			}
			if eventType == events.ProcessStateStopped {
				c.IncProcessExit(e.Data["app"], e.Data["process"])
			}
		})
	}

	bus.Subscribe(events.AppAdded, func(e events.Event) {
		n := atomic.AddInt64(&appCount, 1)
		c.SetRegisteredApps(int(n))
	})
	bus.Subscribe(events.AppRemoved, func(e events.Event) {
		n := atomic.AddInt64(&appCount, -1)
		c.SetRegisteredApps(int(n))
		c.RemoveApp(e.Data["app"])
	})
}
