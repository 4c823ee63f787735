// Package httpapi serves the kpiflow JSON API over fasthttp.
//
// Routes:
//
//	GET  /kpi/list/          list KPIs
//	POST /kpi/create/        create a KPI
//	POST /kpi/link-asset/    link an asset to a KPI
//	POST /kpi/evaluate/      evaluate an inbound message
//	GET  /kpi/evaluations/   list stored results (asset_id, attribute_id filters)
//	POST /expr/evaluate/     evaluate an expression without storing it
//	GET  /stats              expvar counters
package httpapi

import (
	"context"
	"expvar"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/service"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/expvarhandler"
)

// Response counters by status code, served on /stats.
var responses = expvar.NewMap("kpiflow_http_responses")

// Server is the kpiflow HTTP front end.
type Server struct {
	svc    *service.Service
	logger *slog.Logger
	server *fasthttp.Server

	// ctx is the parent of every request context and is cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server for svc. logger may be nil.
func New(svc *service.Service, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:    svc,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.server = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "kpiflow",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the routing request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		s.route(ctx)

		status := ctx.Response.StatusCode()
		responses.Add(strconv.Itoa(status), 1)
		if s.logger != nil {
			s.logger.Debug("request served",
				slog.String("method", string(ctx.Method())),
				slog.String("path", string(ctx.Path())),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			)
		}
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/kpi/list/":
		s.method(ctx, fasthttp.MethodGet, s.handleListKPIs)
	case "/kpi/create/":
		s.method(ctx, fasthttp.MethodPost, s.handleCreateKPI)
	case "/kpi/link-asset/":
		s.method(ctx, fasthttp.MethodPost, s.handleLinkAsset)
	case "/kpi/evaluate/":
		s.method(ctx, fasthttp.MethodPost, s.handleEvaluate)
	case "/kpi/evaluations/":
		s.method(ctx, fasthttp.MethodGet, s.handleListResults)
	case "/expr/evaluate/":
		s.method(ctx, fasthttp.MethodPost, s.handleEvaluateExpression)
	case "/stats":
		expvarhandler.ExpvarHandler(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not found.")
	}
}

func (s *Server) method(ctx *fasthttp.RequestCtx, method string, h fasthttp.RequestHandler) {
	if string(ctx.Method()) != method {
		ctx.Response.Header.Set("Allow", method)
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method \""+string(ctx.Method())+"\" not allowed.")
		return
	}
	h(ctx)
}

// requestContext derives the context for service calls made while serving
// ctx. It carries the request's user values and is cancelled by Shutdown.
func (s *Server) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	rc, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.ctx.Err() != nil {
		cancel()
		return rc, cancel
	}
	stop := context.AfterFunc(s.ctx, cancel)
	return rc, func() {
		stop()
		cancel()
	}
}

// ListenAndServe serves HTTP on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	if s.logger != nil {
		s.logger.Info("starting HTTP server", slog.String("addr", addr))
	}
	return s.server.ListenAndServe(addr)
}

// Serve serves HTTP on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.server.Shutdown()
}
