/*
Package tracing links the hops of one window command.

# Overview

A command crosses three hops: the window socket, the controller's router and
the worker process. Correlation ids are local to each hop, so a trace id is
carried alongside them: spans are started from a context, children inherit the
trace id, and the worker receives the ids in the Command frame.

Completed spans are handed to a buffered collector that writes them to the log.
Nothing is exported elsewhere.

# Usage

	tracer := tracing.New("controller", logger)
	defer tracer.Close()

	router.GET("/ws", tracing.HTTPMiddleware(tracer), hub.HandleConnection)

	span, ctx := tracer.StartSpan(ctx, "invoke config-bindings")
	defer tracer.End(span, err)

	// across the worker pipe
	msg.Trace = tracing.Inject(ctx)
	ctx = tracing.Extract(ctx, msg.Trace)

A nil *Tracer is valid and records nothing.
*/
package tracing
