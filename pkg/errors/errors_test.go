package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInvalidParam:      http.StatusBadRequest,
		CodeURLRejected:       http.StatusBadRequest,
		CodeUnsupportedFormat: http.StatusBadRequest,
		CodePayloadTooLarge:   http.StatusRequestEntityTooLarge,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeJobNotFound:       http.StatusNotFound,
		CodeQueryRunNotFound:  http.StatusNotFound,
		CodeGatewayError:      http.StatusBadGateway,
		CodeDatabaseError:     http.StatusInternalServerError,
		CodeJobExhausted:      http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus, "code %s", code)
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := Wrap(fmt.Errorf("dial tcp: refused"), CodeGatewayError, "embed request failed")
	wrapped := fmt.Errorf("query: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrGateway))
	assert.False(t, stderrors.Is(wrapped, ErrURLRejected))
	assert.True(t, HasCode(wrapped, CodeGatewayError))
	assert.True(t, IsAppError(wrapped))
	assert.Equal(t, CodeGatewayError, AsAppError(wrapped).Code)
}

func TestAppError_CauseAndError(t *testing.T) {
	err := New(CodeURLRejected, "Host is blocked.").WithDetail("localhost")
	assert.Equal(t, "Host is blocked.: localhost", err.Cause())
	assert.Equal(t, "[1104] Host is blocked. (localhost)", err.Error())

	plain := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, plain.Code)
	assert.Equal(t, "unknown error: boom", plain.Cause())
}
