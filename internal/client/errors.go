package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind 提供方错误类别
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindInvalidSession 会话不存在或已过期，可去掉会话重试
	KindInvalidSession
	// KindUnavailable 网络、限流或服务端故障
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSession:
		return "invalid_session"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ProviderError 带类别的提供方错误
type ProviderError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf 读取错误类别，非 ProviderError 返回 KindUnknown
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// 服务端可重试错误码
var unavailableCodes = map[string]bool{
	"ThrottlingException":           true,
	"ServiceUnavailableException":   true,
	"InternalServerException":       true,
	"BadGatewayException":           true,
	"DependencyFailedException":     true,
	"ServiceQuotaExceededException": true,
	"ModelNotReadyException":        true,
	"ModelTimeoutException":         true,
}

// ClassifyError 把 AWS / OpenAI / 网络错误归类为 ProviderError
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Kind: kindFor(err), Err: err}
}

func kindFor(err error) ErrorKind {
	// 调用方取消不是提供方故障
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if isInvalidSession(apiErr.ErrorCode(), apiErr.ErrorMessage()) {
			return KindInvalidSession
		}
		if unavailableCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return KindUnavailable
		}
		return KindUnknown
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		return kindForStatus(oaErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return kindForStatus(reqErr.HTTPStatusCode)
	}

	// 未返回 API 错误体：连接失败、DNS、TLS 等
	return KindUnavailable
}

func kindForStatus(status int) ErrorKind {
	if status == 429 || status >= 500 || status == 0 {
		return KindUnavailable
	}
	return KindUnknown
}

// isInvalidSession Bedrock 对无效会话返回 ValidationException，
// 消息形如 "Session with Id xxx is not valid"
func isInvalidSession(code, message string) bool {
	if code != "ValidationException" {
		return false
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "session with id") && strings.Contains(lower, "is not valid")
}
