package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/emicklei/go-restful/v3"

	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

// RequestID takes the caller's X-Request-ID or mints one, puts it on the request
// context and echoes it back
func RequestID(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	ctx := req.Request.Context()
	if id := req.HeaderParameter(requestid.Header); id != "" {
		ctx = requestid.WithRequestID(ctx, id)
	}
	ctx, id := requestid.Ensure(ctx)

	req.Request = req.Request.WithContext(ctx)
	resp.AddHeader(requestid.Header, id)
	chain.ProcessFilter(req, resp)
}

// AccessLog logs one line per request
func AccessLog(logger logging.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		start := time.Now()
		chain.ProcessFilter(req, resp)

		logger.Info(req.Request.Context(), "HTTP request", map[string]interface{}{
			"method":     req.Request.Method,
			"path":       req.Request.URL.Path,
			"status":     resp.StatusCode(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
}

// RecoverPanic turns a handler panic into a 500
func RecoverPanic(logger logging.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(req.Request.Context(), "Recovered from handler panic", map[string]interface{}{
					"panic": fmt.Sprint(r),
					"path":  req.Request.URL.Path,
				})
				writeError(req, resp, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			}
		}()
		chain.ProcessFilter(req, resp)
	}
}
