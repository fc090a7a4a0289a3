package httpx

import (
	"errors"
	"net/http"

	"github.com/roadmetrics/countline/internal/domain/model"
	apperrors "github.com/roadmetrics/countline/internal/errors"
)

// RenderError maps application errors onto HTTP status codes and writes the
// JSON error body.
func RenderError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrJobNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		return
	}

	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.ErrCodeStorage, apperrors.ErrCodeEngine, apperrors.ErrCodePersistence:
		status = http.StatusBadGateway
	}

	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err})
}
