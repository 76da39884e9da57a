package resilience

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.FailureKind
	}{
		{"nil", nil, ""},
		{"explicit kind", NewProviderError(model.FailureRateLimited, 429, eris.New("slow down")), model.FailureRateLimited},
		{"wrapped provider error", eris.Wrap(NewProviderError(model.FailureTimeout, 408, eris.New("late")), "outer"), model.FailureTimeout},
		{"deadline exceeded", context.DeadlineExceeded, model.FailureTimeout},
		{"connection refused", syscall.ECONNREFUSED, model.FailureUnavailable},
		{"connection reset", syscall.ECONNRESET, model.FailureUnavailable},
		{"name resolution", errors.New("dial tcp: lookup api.example.com: temporary failure in name resolution"), model.FailureUnavailable},
		{"io timeout string", errors.New("read tcp 10.0.0.1:443: i/o timeout"), model.FailureTimeout},
		{"unknown", errors.New("something odd"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(&model.ValidationError{Capability: "enrich_lead", Reason: "bad"}))
	assert.False(t, IsRetryable(&model.StateError{LeadID: "x", From: model.StageDiscovered, To: model.StageQualified}))
	assert.False(t, IsRetryable(NewProviderError(model.FailureInvalidInput, 400, eris.New("bad field"))))
	assert.False(t, IsRetryable(errors.New("unclassified")))

	assert.True(t, IsRetryable(NewProviderError(model.FailureProviderError, 500, eris.New("boom"))))
	assert.True(t, IsRetryable(NewProviderError(model.FailureRateLimited, 429, eris.New("later"))))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(syscall.ECONNREFUSED))
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, model.FailureTimeout, KindForStatus(http.StatusRequestTimeout))
	assert.Equal(t, model.FailureRateLimited, KindForStatus(http.StatusTooManyRequests))
	assert.Equal(t, model.FailureProviderError, KindForStatus(http.StatusInternalServerError))
	assert.Equal(t, model.FailureProviderError, KindForStatus(http.StatusBadGateway))
	assert.Equal(t, model.FailureInvalidInput, KindForStatus(http.StatusBadRequest))
	assert.Equal(t, model.FailureInvalidInput, KindForStatus(http.StatusUnprocessableEntity))
	assert.Equal(t, model.FailureKind(""), KindForStatus(http.StatusOK))
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := eris.New("root cause")
	err := NewProviderError(model.FailureUnavailable, 0, inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Contains(t, err.Error(), "root cause")
}
