package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, map[string]int{"count": 3}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
		msg   string
	}{
		{
			name:  "bad request",
			write: func(w http.ResponseWriter) { WriteBadRequest(w, "missing payload") },
			code:  http.StatusBadRequest,
			msg:   "missing payload",
		},
		{
			name:  "internal",
			write: func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) },
			code:  http.StatusInternalServerError,
			msg:   "boom",
		},
		{
			name:  "custom",
			write: func(w http.ResponseWriter) { WriteErrorMessage(w, http.StatusMethodNotAllowed, "use GET or POST") },
			code:  http.StatusMethodNotAllowed,
			msg:   "use GET or POST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestWritePixel(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePixel(rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "GIF89a", rec.Body.String()[:6])
}
