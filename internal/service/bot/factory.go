package bot

import (
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/events"
	"github.com/sandevgo/botstudio/internal/service/generator"
	"github.com/sandevgo/botstudio/internal/service/safety"
	"github.com/sandevgo/botstudio/internal/service/trace"
)

// Route binds a routing keyword to a child generator. At most one route is
// the designated default; without one, the first route is the default.
type Route struct {
	Keyword   string
	Default   bool
	Generator generator.ResponseGenerator
}

// BotSpec assembles one orchestration unit. It is validated once at
// construction; the resulting Router is immutable.
type BotSpec struct {
	Primary  generator.ResponseGenerator
	Routes   []Route
	Terminal generator.ResponseGenerator
	Filters  []*safety.Filter
}

func NewRouter(spec BotSpec, recorder *trace.Recorder, sink core.EventSink) (*Router, error) {
	if spec.Primary == nil {
		return nil, &core.ChatError{Reason: "a primary generator is required"}
	}

	routes := make(map[string]generator.ResponseGenerator, len(spec.Routes))
	defaultRoute := ""
	for i, route := range spec.Routes {
		keyword := strings.ToLower(strings.TrimSpace(route.Keyword))
		if keyword == "" {
			return nil, &core.ChatError{Reason: "route keyword must not be empty"}
		}
		if _, exists := routes[keyword]; exists {
			return nil, &core.ChatError{Reason: "duplicate route keyword " + keyword}
		}
		if route.Generator == nil {
			return nil, &core.ChatError{Reason: "route " + keyword + " has no generator"}
		}
		routes[keyword] = route.Generator

		if route.Default {
			if defaultRoute != "" {
				return nil, &core.ChatError{Reason: "multiple default routes configured"}
			}
			defaultRoute = keyword
		}
		if i == 0 && defaultRoute == "" {
			defaultRoute = keyword
		}
	}

	if recorder == nil {
		recorder = trace.NewRecorder()
	}
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Router{
		primary:      spec.Primary,
		routes:       routes,
		defaultRoute: defaultRoute,
		terminal:     spec.Terminal,
		filters:      spec.Filters,
		recorder:     recorder,
		events:       sink,
	}, nil
}
