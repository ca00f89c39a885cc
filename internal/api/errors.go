package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/observability/alerting"
)

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusOf 把错误码映射为 HTTP 状态码。未编码的错误视为存储传输故障。
func statusOf(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if _, ok := xerrors.From(err); !ok {
		return http.StatusServiceUnavailable
	}
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeEncodeFailure:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeStorageFailure, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail 写出错误响应，5xx 错误记录日志并按错误码属性触发告警。
func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation, group string, err error) {
	status := statusOf(err)
	// 未编码的传输错误可能包含连接地址，只返回通用信息。
	body := errorBody{Code: string(xerrors.CodeStorageFailure), Message: "存储服务暂不可用"}
	if coded, ok := xerrors.From(err); ok {
		body.Code = string(coded.Code())
		body.Message = coded.Message()
		body.Metadata = coded.Metadata()
	} else if status == http.StatusGatewayTimeout {
		body = errorBody{Code: string(xerrors.CodeTimeout), Message: "存储操作超时"}
	}

	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "请求处理失败",
			"operation", operation, "group", group, "status", status, "error", err)
		if s.alerts != nil {
			if event, ok := alerting.FromError(err, operation, group); ok {
				if alertErr := s.alerts.Notify(r.Context(), event); alertErr != nil {
					s.log.WarnContext(r.Context(), "告警发送失败", "error", alertErr)
				}
			}
		}
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
