package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"beehive/internal/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorEnvelope struct {
	Error string `json:"error"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

// writeAppError 对可公开的错误返回原消息，其余返回 fallback 并记录原因。
func writeAppError(w http.ResponseWriter, log zerolog.Logger, err error, fallback string) {
	status := apperror.Status(err)
	message := fallback
	if typed := apperror.As(err); typed != nil && typed.Public() {
		message = typed.Message()
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeError(w, status, message)
}

// decodeJSON 解析 JSON 请求体并执行 validate 标签校验。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return validate.Struct(v)
}

// queryInt 读取整数查询参数，缺省时返回 def。
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
