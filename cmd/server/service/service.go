// Package service exposes the upload API over connect and runs the
// background reconciler.
package service

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/health"
	"github.com/alphauslabs/buckshot/internal/pool"
)

// ServiceName is the fully-qualified connect service name.
const ServiceName = "buckshot.v1.UploadService"

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// Procedures lists the unary methods served under ServiceName.
var Procedures = []string{
	"SubmitJob", "GetJob", "ListJobs",
	"AddProject", "UpdateProject", "ListProjects",
	"AddAccount", "UpdateAccount", "ListAccounts", "CheckAccount",
	"CreateTemplate",
}

// UploadService implements the operator API.
type UploadService struct {
	store      database.Store
	registry   *pool.Registry
	decomposer *decomposer.Decomposer
	monitor    *health.Monitor
}

// NewUploadService creates a new UploadService with the given dependencies.
func NewUploadService(
	store database.Store,
	registry *pool.Registry,
	d *decomposer.Decomposer,
	monitor *health.Monitor,
) *UploadService {
	return &UploadService{
		store:      store,
		registry:   registry,
		decomposer: d,
		monitor:    monitor,
	}
}

// Handler returns the path prefix and handler serving every procedure.
func (s *UploadService) Handler() (string, http.Handler) {
	mux := http.NewServeMux()
	register(mux, "SubmitJob", s.SubmitJob)
	register(mux, "GetJob", s.GetJob)
	register(mux, "ListJobs", s.ListJobs)
	register(mux, "AddProject", s.AddProject)
	register(mux, "UpdateProject", s.UpdateProject)
	register(mux, "ListProjects", s.ListProjects)
	register(mux, "AddAccount", s.AddAccount)
	register(mux, "UpdateAccount", s.UpdateAccount)
	register(mux, "ListAccounts", s.ListAccounts)
	register(mux, "CheckAccount", s.CheckAccount)
	register(mux, "CreateTemplate", s.CreateTemplate)
	return "/" + ServiceName + "/", mux
}

func register[Req, Res any](mux *http.ServeMux, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := "/" + ServiceName + "/" + method
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, connect.WithCodec(jsonCodec{})))
}

// actor identifies the operator behind a request for audit entries.
func actor(h http.Header) string {
	if email := h.Get("X-OAuth-Email"); email != "" {
		return email
	}
	return "operator"
}

// toConnectError maps domain error codes to connect codes.
func toConnectError(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	var code connect.Code
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		code = connect.CodeInvalidArgument
	case apperr.CodeNotFound:
		code = connect.CodeNotFound
	case apperr.CodeEmptyAccountSet, apperr.CodeAccountUnavailable, apperr.CodePermanentUpload:
		code = connect.CodeFailedPrecondition
	case apperr.CodeProjectCapacityExceeded:
		code = connect.CodeResourceExhausted
	case apperr.CodeTransientUpload:
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

// page validates pagination, applying defaults for zero values.
func page(p, limit int) (database.Page, error) {
	if p == 0 {
		p = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if p < 1 {
		return database.Page{}, apperr.Validation("page must be at least 1")
	}
	if limit < 1 || limit > maxPageLimit {
		return database.Page{}, apperr.Validation("limit must be between 1 and %d", maxPageLimit)
	}
	return database.Page{Page: p, Limit: limit}, nil
}
