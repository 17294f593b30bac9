// Package rpc provides the Connect service for flowerstory.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/pinkittys/flowerstory/internal/domain"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/recommend"
)

const (
	// ServiceName is the fully-qualified Connect service name.
	ServiceName = "flowerstory.v1.RecommendService"

	RecommendProcedure      = "/" + ServiceName + "/Recommend"
	ExtractContextProcedure = "/" + ServiceName + "/ExtractContext"
)

// ContextResponse is the ExtractContext response message.
type ContextResponse struct {
	Context extract.Context `json:"context"`
}

// RecommendService implements the Connect recommendation service.
type RecommendService struct {
	logger  *observability.Logger
	service *recommend.Service
}

// NewRecommendService creates a new recommendation service.
func NewRecommendService(logger *observability.Logger, service *recommend.Service) *RecommendService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RecommendService{
		logger:  logger.WithComponent("rpc"),
		service: service,
	}
}

// Handler returns the mount path and handler for the service.
func (s *RecommendService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RecommendProcedure, connect.NewUnaryHandler(RecommendProcedure, s.Recommend, opts...))
	mux.Handle(ExtractContextProcedure, connect.NewUnaryHandler(ExtractContextProcedure, s.ExtractContext, opts...))
	return "/" + ServiceName + "/", mux
}

// Recommend handles Connect recommendation calls.
func (s *RecommendService) Recommend(ctx context.Context, req *connect.Request[recommend.Request]) (*connect.Response[recommend.Response], error) {
	ctx = withRequestID(ctx, req.Header())

	out, err := s.service.Recommend(ctx, *req.Msg)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(ptr(out.Response())), nil
}

// ExtractContext handles Connect extraction-only calls.
func (s *RecommendService) ExtractContext(ctx context.Context, req *connect.Request[recommend.Request]) (*connect.Response[ContextResponse], error) {
	ctx = withRequestID(ctx, req.Header())

	c, err := s.service.Extract(ctx, *req.Msg)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&ContextResponse{Context: c}), nil
}

// NewClients returns typed clients for both procedures, for tools and tests.
func NewClients(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) (*connect.Client[recommend.Request, recommend.Response], *connect.Client[recommend.Request, ContextResponse]) {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return connect.NewClient[recommend.Request, recommend.Response](httpClient, baseURL+RecommendProcedure, opts...),
		connect.NewClient[recommend.Request, ContextResponse](httpClient, baseURL+ExtractContextProcedure, opts...)
}

func (s *RecommendService) toConnectError(ctx context.Context, err error) *connect.Error {
	var code connect.Code
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		code = connect.CodeInvalidArgument
	case domain.ErrorTypeRateLimited:
		code = connect.CodeResourceExhausted
	case domain.ErrorTypeCatalog:
		code = connect.CodeUnavailable
	default:
		s.logger.WithContext(ctx).Error().Err(err).Msg("Connect call failed")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	return connect.NewError(code, err)
}

func withRequestID(ctx context.Context, h http.Header) context.Context {
	if id := h.Get("X-Request-Id"); id != "" {
		return observability.ContextWithRequestID(ctx, id)
	}
	return ctx
}

func ptr[T any](v T) *T { return &v }
