package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// Envelope is the JSON body every endpoint answers with.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Reason carries the business rule that
// rejected it, when there is one.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder helps construct consistent HTTP responses.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// WithPage records the window a listing was read with and how many rows it returned.
func (b *Builder) WithPage(limit, offset, count int) *Builder {
	b.WithMeta("count", count)
	if limit > 0 {
		b.WithMeta("limit", limit)
	}
	if offset > 0 {
		b.WithMeta("offset", offset)
	}
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("request_id", id)
	}
	if b.err != nil {
		return b.buildError()
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.ctx.JSON(b.status, Envelope{Success: true, Data: b.data, Meta: b.meta})
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < 400 {
		status = appErr.StatusCode()
	}
	return b.ctx.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Reason:  string(appErr.Reason()),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}
