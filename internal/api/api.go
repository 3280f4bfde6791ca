// Package api exposes a read-only JSON view of registered scouts and the
// places hierarchy under /v0.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/gabrielmiguelok/tropa/internal/registration"
	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/health"
	"github.com/gabrielmiguelok/tropa/pkg/lookup"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

// BasePath is where the API is mounted.
const BasePath = "/v0"

// ScoutReader is the read side of the scouts store.
type ScoutReader interface {
	List(ctx context.Context, f storage.ListFilter) ([]storage.Scout, error)
	Get(ctx context.Context, id string) (wizard.Record, error)
}

// Config wires the API to its collaborators.
type Config struct {
	Scouts  ScoutReader
	Places  registration.PlaceSources
	Health  *health.Checker
	Version string
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiError is the error envelope of every failed request.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func handleError(err error) huma.StatusError {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, lookup.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// New mounts the API on r and returns the huma API for inspection.
func New(r chi.Router, cfg Config) huma.API {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		if len(errs) > 0 {
			msg = msg + ": " + errs[0].Error()
		}
		return newAPIError(status, "", msg)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	hcfg := huma.DefaultConfig("Tropa API", version)
	hcfg.OpenAPIPath = BasePath + "/openapi"
	hcfg.DocsPath = ""
	hcfg.SchemasPath = BasePath + "/schemas"

	api := humachi.New(r, hcfg)
	group := huma.NewGroup(api, BasePath)

	registerHealth(group, cfg.Health)
	registerScouts(group, cfg.Scouts)
	registerPlaces(group, cfg.Places)
	return api
}

type healthOutput struct {
	Status int
	Body   health.Report
}

func registerHealth(api huma.API, checker *health.Checker) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		if checker == nil {
			return &healthOutput{Status: http.StatusOK, Body: health.Report{Status: health.StatusHealthy}}, nil
		}
		report := checker.Check(ctx)
		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		return &healthOutput{Status: status, Body: report}, nil
	})
}

type listScoutsInput struct {
	Rama  string `query:"rama" enum:"manada,tropa,comunidad,clan" doc:"Filter by rama"`
	Limit int    `query:"limit" minimum:"1" maximum:"500" default:"100"`
}

type scoutPath struct {
	ID string `path:"id"`
}

func registerScouts(api huma.API, scouts ScoutReader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-scouts",
		Method:      http.MethodGet,
		Path:        "/scouts",
		Summary:     "List registered scouts",
		Tags:        []string{"scouts"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *listScoutsInput) (*struct {
		Body []storage.Scout `json:"body"`
	}, error) {
		items, err := scouts.List(ctx, storage.ListFilter{Rama: input.Rama, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []storage.Scout{}
		}
		return &struct {
			Body []storage.Scout `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scout",
		Method:      http.MethodGet,
		Path:        "/scouts/{id}",
		Summary:     "Get a scout record",
		Tags:        []string{"scouts"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *scoutPath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		rec, err := scouts.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: rec}, nil
	})
}

type optionsOutput struct {
	Body []lookup.Option `json:"body"`
}

type parentPath struct {
	ID string `path:"id"`
}

func registerPlaces(api huma.API, places registration.PlaceSources) {
	list := func(src lookup.Source) func(context.Context, *parentPath) (*optionsOutput, error) {
		return func(ctx context.Context, input *parentPath) (*optionsOutput, error) {
			opts, err := src.ListOptions(ctx, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			if opts == nil {
				opts = []lookup.Option{}
			}
			return &optionsOutput{Body: opts}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-regions",
		Method:      http.MethodGet,
		Path:        "/places/regions",
		Summary:     "List regions",
		Tags:        []string{"places"},
	}, func(ctx context.Context, _ *struct{}) (*optionsOutput, error) {
		return list(places.Regions)(ctx, &parentPath{})
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subregions",
		Method:      http.MethodGet,
		Path:        "/places/regions/{id}/subregions",
		Summary:     "List the sub-regions of a region",
		Tags:        []string{"places"},
		Errors:      []int{http.StatusNotFound},
	}, list(places.Subregions))

	huma.Register(api, huma.Operation{
		OperationID: "list-localities",
		Method:      http.MethodGet,
		Path:        "/places/subregions/{id}/localities",
		Summary:     "List the localities of a sub-region",
		Tags:        []string{"places"},
		Errors:      []int{http.StatusNotFound},
	}, list(places.Localities))
}
