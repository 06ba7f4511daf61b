package schema

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "service %q not found", "svc1")
	assert.Equal(t, `[NOT_FOUND] service "svc1" not found`, err.Error())
}

func TestError_UnwrapCause(t *testing.T) {
	root := errors.New("disk full")
	err := NewError(ErrCodeStore, "insert failed").WithCause(root)
	assert.ErrorIs(t, err, root)
}

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("update config: %w", NewError(ErrCodeConflict, "version changed"))
	assert.Equal(t, ErrCodeConflict, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeConflict))
	assert.False(t, IsCode(nil, ErrCodeConflict))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		ErrCodeBadRequest:   http.StatusBadRequest,
		ErrCodeInvalidState: http.StatusBadRequest,
		ErrCodeConflict:     http.StatusConflict,
		ErrCodeUnauthorized: http.StatusUnauthorized,
		ErrCodeForbidden:    http.StatusForbidden,
		ErrCodeNotFound:     http.StatusNotFound,
		ErrCodeInternal:     http.StatusInternalServerError,
		ErrCodeVault:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(NewError(code, "x")), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestPublicMessage_HidesServerDetail(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("dial tcp 10.0.0.1:3306")))
	assert.Equal(t, "internal server error",
		PublicMessage(NewError(ErrCodeVault, "decrypt failed: cipher: message authentication failed")))
	assert.Equal(t, "content parse failed", PublicMessage(NewError(ErrCodeInternal, "content parse failed")))
	assert.Equal(t, "sub mismatch", PublicMessage(NewError(ErrCodeUnauthorized, "sub mismatch")))
}

func TestValidateVersion(t *testing.T) {
	for _, v := range []string{"0.0.1", "1.0.0", "10.20.30"} {
		assert.NoError(t, ValidateVersion("version", v), v)
	}
	for _, v := range []string{"", "1", "1.0", "v1.0.0", "1.0.0-rc1", "1.0.0 ", "a.b.c"} {
		err := ValidateVersion("version", v)
		assert.True(t, IsCode(err, ErrCodeBadRequest), v)
	}
}

func TestValidateVersion_LengthCap(t *testing.T) {
	fits := "1.0." + strings.Repeat("9", MaxVersionLength-4)
	assert.NoError(t, ValidateVersion("version", fits))

	tooLong := "1.0." + strings.Repeat("9", MaxVersionLength-3)
	err := ValidateVersion("version", tooLong)
	assert.True(t, IsCode(err, ErrCodeBadRequest))
	assert.Contains(t, PublicMessage(err), "at most 64 characters")
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat(""))
	assert.NoError(t, ValidateFormat("json"))
	assert.True(t, IsCode(ValidateFormat("yaml"), ErrCodeBadRequest))
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"billing", "order-svc", "prod", "v1.2_x"} {
		assert.NoError(t, ValidateName("code", ok), ok)
	}
	for _, bad := range []string{"", "-lead", "has space", "a/b", strings.Repeat("x", 129)} {
		err := ValidateName("code", bad)
		assert.True(t, IsCode(err, ErrCodeBadRequest), bad)
	}
}
