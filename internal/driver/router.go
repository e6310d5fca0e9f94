package driver

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"subroll/pkg/subroll"
)

type route struct {
	sink       subroll.EventSink
	dispatcher subroll.SinkDispatcher
	checker    subroll.ModeratorChecker
}

// Router is the process SinkDispatcher and ModeratorChecker. Each call is
// forwarded to the runtime named by the request's sink; a request without a
// sink goes to the only runtime when there is exactly one.
type Router struct {
	routes []route
}

// NewRouter indexes the runtimes that have a sink dispatcher.
func NewRouter(runtimes []Runtime) (*Router, error) {
	var routes []route
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		id := runtime.Source.ID
		if id == "" {
			return nil, fmt.Errorf("new router: missing sink id")
		}
		if slices.ContainsFunc(routes, func(existing route) bool { return existing.sink.ID == id }) {
			return nil, fmt.Errorf("new router: duplicate sink id %s", id)
		}
		routes = append(routes, route{
			sink:       subroll.EventSink{Platform: runtime.Source.Platform, ID: id},
			dispatcher: runtime.SinkDispatcher,
			checker:    runtime.ModeratorChecker,
		})
	}
	slices.SortFunc(routes, func(a, b route) int { return cmp.Compare(a.sink.ID, b.sink.ID) })

	return &Router{routes: routes}, nil
}

func (r *Router) SendMessage(ctx context.Context, request subroll.SendMessageRequest) (*subroll.OutboundMessage, error) {
	return forward(r, request.Target.Sink, "send message", func(target route) (*subroll.OutboundMessage, error) {
		return target.dispatcher.SendMessage(ctx, request)
	})
}

func (r *Router) EditMessage(ctx context.Context, request subroll.EditMessageRequest) error {
	return forwardErr(r, request.Target.Sink, "edit message", func(target route) error {
		return target.dispatcher.EditMessage(ctx, request)
	})
}

func (r *Router) DeleteMessage(ctx context.Context, request subroll.DeleteMessageRequest) error {
	return forwardErr(r, request.Target.Sink, "delete message", func(target route) error {
		return target.dispatcher.DeleteMessage(ctx, request)
	})
}

func (r *Router) SetReaction(ctx context.Context, request subroll.SetReactionRequest) error {
	return forwardErr(r, request.Target.Sink, "set reaction", func(target route) error {
		return target.dispatcher.SetReaction(ctx, request)
	})
}

func (r *Router) ClearReactions(ctx context.Context, request subroll.ClearReactionsRequest) error {
	return forwardErr(r, request.Target.Sink, "clear reactions", func(target route) error {
		return target.dispatcher.ClearReactions(ctx, request)
	})
}

// IsModerator fails with ErrOutboundUnsupported when the owning runtime has
// no checker.
func (r *Router) IsModerator(ctx context.Context, query subroll.ModeratorQuery) (bool, error) {
	return forward(r, query.Sink, "moderator check", func(target route) (bool, error) {
		if target.checker == nil {
			return false, fmt.Errorf("%w: sink %s has no moderator checker", subroll.ErrOutboundUnsupported, target.sink.ID)
		}
		return target.checker.IsModerator(ctx, query)
	})
}

// Sinks lists the routed sinks sorted by ID.
func (r *Router) Sinks() []subroll.EventSink {
	if r == nil {
		return nil
	}

	sinks := make([]subroll.EventSink, 0, len(r.routes))
	for _, target := range r.routes {
		sinks = append(sinks, target.sink)
	}

	return sinks
}

func forward[T any](r *Router, sink *subroll.EventSink, operation string, call func(route) (T, error)) (T, error) {
	var zero T

	target, err := r.resolve(sink)
	if err != nil {
		return zero, fmt.Errorf("resolve sink for %s: %w", operation, err)
	}
	result, err := call(target)
	if err != nil {
		return zero, fmt.Errorf("route %s: %w", operation, err)
	}

	return result, nil
}

func forwardErr(r *Router, sink *subroll.EventSink, operation string, call func(route) error) error {
	_, err := forward(r, sink, operation, func(target route) (struct{}, error) {
		return struct{}{}, call(target)
	})

	return err
}

func (r *Router) resolve(sink *subroll.EventSink) (route, error) {
	switch {
	case r == nil:
		return route{}, fmt.Errorf("nil router")
	case len(r.routes) == 0:
		return route{}, fmt.Errorf("%w: no sinks configured", subroll.ErrOutboundUnsupported)
	case sink == nil && len(r.routes) == 1:
		return r.routes[0], nil
	case sink == nil:
		return route{}, fmt.Errorf("%w: missing target sink", subroll.ErrOutboundUnsupported)
	case sink.ID != "":
		return r.resolveID(*sink)
	case sink.Platform == "":
		return route{}, fmt.Errorf("%w: empty sink reference", subroll.ErrOutboundUnsupported)
	}

	var matches []route
	for _, target := range r.routes {
		if target.sink.Platform == sink.Platform {
			matches = append(matches, target)
		}
	}
	switch len(matches) {
	case 0:
		return route{}, fmt.Errorf("%w: no sink for platform %s", subroll.ErrOutboundUnsupported, sink.Platform)
	case 1:
		return matches[0], nil
	}

	return route{}, fmt.Errorf("%w: ambiguous sink for platform %s", subroll.ErrOutboundUnsupported, sink.Platform)
}

func (r *Router) resolveID(sink subroll.EventSink) (route, error) {
	index := slices.IndexFunc(r.routes, func(target route) bool { return target.sink.ID == sink.ID })
	if index < 0 {
		return route{}, fmt.Errorf("%w: sink %s not found", subroll.ErrOutboundUnsupported, sink.ID)
	}
	target := r.routes[index]
	if sink.Platform != "" && target.sink.Platform != sink.Platform {
		return route{}, fmt.Errorf(
			"%w: sink %s platform mismatch: expected %s got %s",
			subroll.ErrOutboundUnsupported, sink.ID, sink.Platform, target.sink.Platform,
		)
	}

	return target, nil
}

var (
	_ subroll.SinkDispatcher   = (*Router)(nil)
	_ subroll.ModeratorChecker = (*Router)(nil)
)
