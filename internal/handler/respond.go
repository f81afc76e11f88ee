// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/accessportal/internal/events"
	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
)

// リクエストボディの上限
const maxRequestBodyBytes = 64 << 10

// responder はレスポンスの書き込みとエラーイベントの発行を担う。
type responder struct {
	bus    *events.Bus
	logger *slog.Logger
}

func newResponder(bus *events.Bus, l *slog.Logger) *responder {
	if l == nil {
		l = slog.Default()
	}
	return &responder{bus: bus, logger: l}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// fail はサービス層から返されたエラーをHTTPレスポンスに変換し、エラーイベントを発行する。
// APIError以外のエラーは詳細をログのみに記録し、一般的な内部エラーとして返す。
func (rs *responder) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		rs.logger.Error("internal server error",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		apiErr = model.NewInternalError()
	}

	rs.bus.Publish(r.Context(), events.FromAPIError(apiErr, operation, middleware.UserIDFromContext(r.Context())))
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// DUPLICATE_REQUESTは失敗ではなく通知として200で返す。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePermissionDenied:
		return http.StatusForbidden
	case model.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case model.ErrCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case model.ErrCodeDuplicateRequest:
		return http.StatusOK
	case model.ErrCodeInvalidState:
		return http.StatusConflict
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合はINVALID_ARGUMENTを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidArgumentError("body", "request body is required")
		}
		return model.NewInvalidArgumentError("body", "request body must be valid JSON")
	}
	return nil
}

// decodeOptionalJSON は空ボディを許容するdecodeJSON。
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewInvalidArgumentError("body", "request body must be valid JSON")
	}
	return nil
}

type messageResponse struct {
	Message string `json:"message"`
}
