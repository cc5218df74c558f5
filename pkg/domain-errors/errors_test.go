package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesCodeThroughWrapping(t *testing.T) {
	cause := stderrors.New("pq: duplicate key value violates unique constraint")
	err := Wrap(CodeConflict, "record already exists", cause)

	assert.True(t, Is(err, CodeConflict))
	assert.False(t, Is(err, CodeNotFound))
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("boom")))
	assert.Equal(t, CodeLedgerWrite, CodeOf(New(CodeLedgerWrite, "endorsement failed")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:             http.StatusNotFound,
		CodeConflict:             http.StatusConflict,
		CodeBadRequest:           http.StatusBadRequest,
		CodeUnauthorized:         http.StatusUnauthorized,
		CodeChannelAccess:        http.StatusForbidden,
		CodeLedgerUnavailable:    http.StatusServiceUnavailable,
		CodeIndexUnavailable:     http.StatusServiceUnavailable,
		CodeLedgerWrite:          http.StatusBadGateway,
		CodeVerificationMismatch: http.StatusConflict,
		CodeInternal:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
