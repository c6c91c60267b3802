package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware starts a span per request. A caller may join an existing trace
// with the X-Trace-ID and X-Span-ID headers; the ids are echoed in the response.
// For /ws the span lasts as long as the socket.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := Extract(c.Request.Context(), map[string]string{
			TraceHeader: c.GetHeader(TraceHeader),
			SpanHeader:  c.GetHeader(SpanHeader),
		})

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)
		if span != nil {
			c.Header(TraceHeader, string(span.TraceID))
			c.Header(SpanHeader, string(span.SpanID))
		}

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		tracer.End(span, err)
	}
}
