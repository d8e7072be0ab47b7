package errorbank_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/comanda/pkg/errorbank"
)

func TestBusiness_CarriesReasonAndKind(t *testing.T) {
	err := errorbank.Business("customer_inactive", "customer 7 is inactive", errorbank.WithDetail("id", int64(7)))

	assert.Equal(t, errorbank.KindUnprocessableEntity, err.Kind())
	assert.Equal(t, errorbank.Reason("customer_inactive"), err.Reason())
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode())
	assert.Equal(t, codes.FailedPrecondition, err.GRPCCode())
	assert.Equal(t, int64(7), err.Details()["id"])
}

func TestHasReason_SeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create order: %w", errorbank.Business("restaurant_closed", "closed"))

	assert.True(t, errorbank.HasReason(err, "restaurant_closed"))
	assert.False(t, errorbank.HasReason(err, "cannot_cancel"))
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnprocessableEntity))
	assert.False(t, errorbank.HasReason(errors.New("plain"), "restaurant_closed"))
}

func TestFrom_WrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := errorbank.From(cause)

	require.NotNil(t, appErr)
	assert.Equal(t, errorbank.KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, errorbank.From(nil))
}

func TestGRPCStatus(t *testing.T) {
	st, ok := status.FromError(errorbank.NotFound("order 9 not found"))

	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "order 9 not found", st.Message())
}

func TestKindMappings(t *testing.T) {
	cases := []struct {
		err  *errorbank.AppError
		http int
		grpc codes.Code
	}{
		{errorbank.BadRequest("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{errorbank.Conflict("dup"), http.StatusConflict, codes.AlreadyExists},
		{errorbank.NotFound("gone"), http.StatusNotFound, codes.NotFound},
		{errorbank.Unavailable("db down"), http.StatusServiceUnavailable, codes.Unavailable},
		{errorbank.Internal("oops"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tc.http, tc.err.StatusCode())
			assert.Equal(t, tc.grpc, tc.err.GRPCCode())
		})
	}
}
