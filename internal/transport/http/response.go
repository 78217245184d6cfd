package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/protocol"
)

const maxBodyBytes = 1 << 20

// StatusOf maps an engine error code to an HTTP status.
func StatusOf(code int) int {
	switch code {
	case protocol.ErrCodeInvalidMsg, protocol.ErrCodeInvalidConfig, protocol.ErrCodeUnknownGame:
		return http.StatusBadRequest
	case protocol.ErrCodeNotFound, protocol.ErrCodePlayerNotFound:
		return http.StatusNotFound
	case protocol.ErrCodeGameFull, protocol.ErrCodeDuplicate,
		protocol.ErrCodeInvalidState, protocol.ErrCodeNotEnough:
		return http.StatusConflict
	case protocol.ErrCodeNotYourTurn:
		return http.StatusForbidden
	case protocol.ErrCodeInvalidAction:
		return http.StatusUnprocessableEntity
	case protocol.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := StatusOf(code)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	var ge *apperrors.GameError
	msg := protocol.ErrorMessages[protocol.ErrCodeUnknown]
	if errors.As(err, &ge) {
		msg = ge.Message
	}
	writeJSON(w, status, protocol.ErrorPayload{Code: code, Message: msg})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, protocol.ErrorPayload{
		Code:    protocol.ErrCodeInvalidMsg,
		Message: msg,
	})
}

// decodeBody decodes an optional JSON body; an empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid json body: "+err.Error())
		return false
	}
	return true
}
