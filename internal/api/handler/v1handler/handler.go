// Package v1handler implements the v1 HTTP endpoints of the scan API.
package v1handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"mailscan/internal/scanner"
	"mailscan/pkg/logger"
	"mailscan/pkg/serrors"
)

// ProviderLister lists the domains of the builtin provider table.
type ProviderLister interface {
	Domains() []string
}

// Deps are the collaborators of the handler.
type Deps struct {
	Scanner   scanner.Scanner
	Providers ProviderLister
}

type Handler struct {
	deps Deps
}

func New(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Routes registers the v1 endpoints on mux.
func (h Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/scan", h.Scan)
	mux.HandleFunc("GET /v1/providers", h.Providers)
}

// ErrorResponse is the body and status of a failed request.
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

var kindStatus = map[serrors.Kind]struct {
	status  int
	message string
}{
	serrors.ErrNotFound:        {http.StatusNotFound, "resource not found"},
	serrors.ErrBadRequest:      {http.StatusBadRequest, "bad request"},
	serrors.ErrTimeout:         {http.StatusGatewayTimeout, "scan timed out"},
	serrors.ErrUnavailable:     {http.StatusServiceUnavailable, "upstream unavailable"},
	serrors.ErrInvalidResponse: {http.StatusBadGateway, "invalid upstream response"},
}

// NewError maps err to an HTTP error response. Errors without a known kind
// are internal errors and their message is not exposed.
func (h Handler) NewError(ctx context.Context, err error) *ErrorResponse {
	var kind serrors.Kind
	if !errors.As(err, &kind) && errors.Is(err, context.DeadlineExceeded) {
		kind = serrors.ErrTimeout
	}

	mapped, ok := kindStatus[kind]
	if !ok {
		logger.Error(ctx, "internal error", zap.Error(err))

		return &ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       serrors.ErrInternal.Error(),
			Message:    "internal error",
		}
	}
	logger.Debug(ctx, "request failed", zap.Error(err))

	message := mapped.message
	var semantic *serrors.Error
	if errors.As(err, &semantic) && semantic.Message() != "" {
		message = semantic.Message()
	}

	return &ErrorResponse{StatusCode: mapped.status, Code: kind.Error(), Message: message}
}

func (h Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	res := h.NewError(r.Context(), err)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(res.Code)
	e.FieldStart("message")
	e.Str(res.Message)
	e.ObjEnd()

	writeJSON(w, res.StatusCode, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
