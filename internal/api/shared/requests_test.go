package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Title string `json:"title" validate:"required,max=5"`
}

type selfValidating struct {
	err error
}

func (s selfValidating) Validate() error { return s.err }

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	newReq := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	var ok sampleRequest
	require.NoError(t, DecodeJSON(newReq(`{"title":"a"}`), &ok))
	assert.Equal(t, "a", ok.Title)

	var empty sampleRequest
	assert.ErrorIs(t, DecodeJSON(newReq(""), &empty), ErrEmptyBody)

	var unknown sampleRequest
	err := DecodeJSON(newReq(`{"title":"a","extra":1}`), &unknown)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyBody)
	assert.Contains(t, err.Error(), "invalid request body")

	var malformed sampleRequest
	assert.Error(t, DecodeJSON(newReq(`{"title":`), &malformed))
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRequest(&sampleRequest{Title: "ok"}))

	err := ValidateRequest(&sampleRequest{Title: "too long"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "max", verrs[0].Tag())

	custom := errors.New("custom")
	assert.ErrorIs(t, ValidateRequest(selfValidating{err: custom}), custom)
}
