package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkx401/pulse/web/api"
)

func TestAPIErrorHandling(t *testing.T) {
	t.Parallel()

	t.Run("it exposes all error details safely for BadRequest", func(t *testing.T) {
		t.Parallel()

		// Arrange
		validationErr := errors.New("invalid min_amount parameter: min_amount must be numeric")

		// Act
		apiErr := api.BadRequest(validationErr)

		// Assert
		assert.Equal(t, http.StatusBadRequest, apiErr.HTTPCode())
		assert.Equal(t, "invalid min_amount parameter: min_amount must be numeric", apiErr.Error())
		assert.Equal(t, validationErr, apiErr.Cause())
	})

	t.Run("it hides sensitive details for InternalServerError", func(t *testing.T) {
		t.Parallel()

		// Arrange
		internalErr := errors.New("redis: dial tcp 10.0.0.7:6379: auth failed for user 'dashboard'")

		// Act
		apiErr := api.InternalServerError(internalErr)

		// Assert
		assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPCode())
		assert.Equal(t, "Internal Server Error", apiErr.Error())
		assert.Equal(t, internalErr, apiErr.Cause())
	})

	t.Run("it classifies unknown errors as InternalServerError", func(t *testing.T) {
		t.Parallel()

		// Act
		apiErr := api.Wrap(errors.New("some random error"))

		// Assert
		require.NotNil(t, apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPCode())
		assert.Equal(t, "Internal Server Error", apiErr.Error())
	})

	t.Run("it classifies cancellations as ServiceUnavailable", func(t *testing.T) {
		t.Parallel()

		for _, cause := range []error{context.Canceled, fmt.Errorf("refresh: %w", context.DeadlineExceeded)} {
			apiErr := api.Wrap(cause)

			assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPCode())
			assert.Equal(t, "Service Unavailable", apiErr.Error())
		}
	})

	t.Run("it creates correct JSON structure when marshaling", func(t *testing.T) {
		t.Parallel()

		// Arrange
		apiErr := api.BadRequest(errors.New("invalid per_page parameter: per_page must be between 1 and 100"))

		// Act
		jsonBytes, err := json.Marshal(apiErr)

		// Assert
		require.NoError(t, err)

		var response map[string]any
		require.NoError(t, json.Unmarshal(jsonBytes, &response))
		assert.Equal(t, float64(http.StatusBadRequest), response["code"])
		assert.Equal(t, "invalid per_page parameter: per_page must be between 1 and 100", response["message"])
	})

	t.Run("it prevents double-wrapping of API errors", func(t *testing.T) {
		t.Parallel()

		// Arrange
		apiErr1 := api.BadRequest(errors.New("some validation error"))

		// Act
		apiErr2 := api.Wrap(fmt.Errorf("handler: %w", apiErr1))

		// Assert
		assert.Same(t, apiErr1, apiErr2)
	})

	t.Run("it supports error unwrapping correctly", func(t *testing.T) {
		t.Parallel()

		// Arrange
		originalErr := errors.New("original error")
		apiErr := api.BadRequest(originalErr)

		// Act & Assert
		assert.ErrorIs(t, apiErr, originalErr)
		assert.Equal(t, originalErr, errors.Unwrap(apiErr))
	})

	t.Run("it returns nil when wrapping a nil error", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, api.Wrap(nil))
	})
}
