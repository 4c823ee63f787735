package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/expr"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/service"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
	"github.com/valyala/fasthttp"
)

type createKPIRequest struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}

type linkAssetRequest struct {
	KPI     string `json:"kpi"`
	AssetID string `json:"asset_id"`
}

type evaluateRequest struct {
	Message *service.Message `json:"message"`
}

type evaluateResponse struct {
	Status string       `json:"status"`
	Result store.Result `json:"result"`
}

type evaluateExpressionRequest struct {
	Expression string `json:"expression"`
	Value      any    `json:"value"`
}

type evaluateExpressionResponse struct {
	Result expr.Result `json:"result"`
	Kind   string      `json:"kind"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleListKPIs(ctx *fasthttp.RequestCtx) {
	rc, cancel := s.requestContext(ctx)
	defer cancel()
	kpis, err := s.svc.ListKPIs(rc)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, kpis)
}

func (s *Server) handleCreateKPI(ctx *fasthttp.RequestCtx) {
	var req createKPIRequest
	if !decodeBody(ctx, &req) {
		return
	}
	rc, cancel := s.requestContext(ctx)
	defer cancel()
	kpi, err := s.svc.CreateKPI(rc, req.Name, req.Expression, req.Description)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, kpi)
}

func (s *Server) handleLinkAsset(ctx *fasthttp.RequestCtx) {
	var req linkAssetRequest
	if !decodeBody(ctx, &req) {
		return
	}
	rc, cancel := s.requestContext(ctx)
	defer cancel()
	link, err := s.svc.LinkAsset(rc, req.KPI, req.AssetID)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, link)
}

func (s *Server) handleEvaluate(ctx *fasthttp.RequestCtx) {
	var req evaluateRequest
	if !decodeBody(ctx, &req) {
		return
	}
	var msg service.Message
	if req.Message != nil {
		msg = *req.Message
	}
	rc, cancel := s.requestContext(ctx)
	defer cancel()
	result, err := s.svc.Evaluate(rc, msg)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, evaluateResponse{Status: "Evaluation completed", Result: result})
}

func (s *Server) handleListResults(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	rc, cancel := s.requestContext(ctx)
	defer cancel()
	results, err := s.svc.ListResults(rc, store.ResultFilter{
		AssetID:     string(args.Peek("asset_id")),
		AttributeID: string(args.Peek("attribute_id")),
	})
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, results)
}

func (s *Server) handleEvaluateExpression(ctx *fasthttp.RequestCtx) {
	var req evaluateExpressionRequest
	if !decodeBody(ctx, &req) {
		return
	}
	if req.Expression == "" {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: "This field may not be blank.", Field: "expression"})
		return
	}
	value := ""
	if req.Value != nil {
		v, err := service.FormatValue(req.Value)
		if err != nil {
			writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: err.Error(), Field: "value"})
			return
		}
		value = v
	}
	result, err := s.svc.EvaluateExpression(req.Expression, value)
	if err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, evaluateExpressionResponse{Result: result, Kind: result.Kind.String()})
}

// writeServiceError maps service and store errors to HTTP statuses.
func (s *Server) writeServiceError(ctx *fasthttp.RequestCtx, err error) {
	var ve *service.ValidationError
	var ee *service.EvaluationError

	switch {
	case errors.As(err, &ve):
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field})
	case errors.Is(err, service.ErrKPINotFound):
		writeError(ctx, fasthttp.StatusNotFound, "KPI not found")
	case errors.Is(err, service.ErrNoLinkedKPI):
		writeError(ctx, fasthttp.StatusNotFound, "No KPI linked to this asset.")
	case errors.Is(err, store.ErrAssetAlreadyLinked):
		writeError(ctx, fasthttp.StatusBadRequest, "This asset is already linked to another KPI.")
	case errors.As(err, &ee):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, ee.Err.Error())
	default:
		if s.logger != nil {
			s.logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		}
		writeError(ctx, fasthttp.StatusInternalServerError, "internal server error")
	}
}

// decodeBody unmarshals the JSON request body into v, writing a 400 and
// returning false on failure. Numbers decode as json.Number.
func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	dec := json.NewDecoder(bytes.NewReader(ctx.PostBody()))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(buf)
}
