package bus

import (
	"time"

	"go.uber.org/zap"
)

// Router is the single dispatcher of the simulation. Publish is synchronous:
// every handler runs before Publish returns, in registration order, and a
// handler publishing a further event has that event fully delivered before
// the outer fan-out resumes. The engine is single threaded, so no locking.
type Router struct {
	logger   *zap.Logger
	handlers map[EventKind][]Handler

	runTime       time.Duration
	publishCount  uint64
	dispatchCount uint64
	maxDepth      int
	depth         int
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[EventKind][]Handler),
	}
}

func (r *Router) Subscribe(kind EventKind, h Handler) {
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Publish delivers ev depth first. Kinds without subscribers are ignored.
func (r *Router) Publish(ev Event) {
	start := time.Now()
	r.publishCount++
	r.depth++
	if r.depth > r.maxDepth {
		r.maxDepth = r.depth
	}

	for _, h := range r.handlers[ev.Kind] {
		r.dispatchCount++
		h(ev)
	}

	r.depth--
	if r.depth == 0 {
		r.runTime += time.Since(start)
	}
}

func (r *Router) PrintStatistics() {
	r.logger.Info("router statistics",
		zap.Duration("run_time", r.runTime),
		zap.Uint64("publish_count", r.publishCount),
		zap.Uint64("dispatch_count", r.dispatchCount),
		zap.Int("max_depth", r.maxDepth))
}
