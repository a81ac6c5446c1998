package types

import (
	"errors"
	"strings"
)

// ErrorKind classifies pipeline failures so the HTTP boundary can map each
// kind to a distinct status/code pair.
type ErrorKind string

const (
	KindImageProcessing    ErrorKind = "image_processing"
	KindInferenceContract  ErrorKind = "inference_contract"
	KindInferenceTransport ErrorKind = "inference_transport"
	KindValidation         ErrorKind = "validation"
)

// PipelineError is the tagged error value propagated unchanged from the point
// of failure to the boundary. Causes keeps every underlying error, so a
// two-attempt transcode failure still exposes both attempts.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Causes  []error
}

func (e *PipelineError) Error() string {
	if len(e.Causes) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Error())
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Unwrap supports errors.Is/errors.As over every attached cause.
func (e *PipelineError) Unwrap() []error {
	return e.Causes
}

func newError(kind ErrorKind, message string, causes ...error) *PipelineError {
	kept := make([]error, 0, len(causes))
	for _, c := range causes {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &PipelineError{Kind: kind, Message: message, Causes: kept}
}

// NewImageProcessingError 图片无法解码/转码
func NewImageProcessingError(message string, causes ...error) *PipelineError {
	return newError(KindImageProcessing, message, causes...)
}

// NewInferenceContractError 上游响应不符合约定的结构
func NewInferenceContractError(message string, causes ...error) *PipelineError {
	return newError(KindInferenceContract, message, causes...)
}

// NewInferenceTransportError 网络失败、超时或非成功响应
func NewInferenceTransportError(message string, causes ...error) *PipelineError {
	return newError(KindInferenceTransport, message, causes...)
}

// NewValidationError 边界输入缺失/非法，未发起任何外部调用
func NewValidationError(message string, causes ...error) *PipelineError {
	return newError(KindValidation, message, causes...)
}

// KindOf returns the pipeline kind of err, unwrapping as needed.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
