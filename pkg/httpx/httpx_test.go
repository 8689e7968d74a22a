package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pledge/pkg/escrow"
)

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusForKind(escrow.KindAuthorization))
	assert.Equal(t, http.StatusConflict, StatusForKind(escrow.KindState))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusForKind(escrow.KindTime))
	assert.Equal(t, http.StatusBadRequest, StatusForKind(escrow.KindRange))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusForKind(escrow.KindArithmetic))
}

func TestWriteDomainErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, escrow.ErrNotOwner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_PLEDGE_OWNER", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestWriteDomainErrorUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
