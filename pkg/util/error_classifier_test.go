package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	var payload struct{ A int }
	jsonErr := json.Unmarshal([]byte("{"), &payload)

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", jsonErr), false, "json_decode_error"},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"fk", &pgconn.PgError{Code: "23503"}, false, "constraint_violation"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_transient_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"url", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dial")}, true, "network_error"},
		{"refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"other", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
