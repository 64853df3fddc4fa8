// Package mcp exposes the retrieval pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeEmptyIndex indicates nothing has been ingested yet.
	ErrCodeEmptyIndex = -32001

	// ErrCodeOracleFailed indicates an embedding or rerank call failed.
	ErrCodeOracleFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a path given to add_files is missing.
	ErrCodeFileNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a tool failure with a protocol error code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts pipeline errors to MCP errors. The message keeps the
// pipeline code so clients can tell failures apart.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var re *ragerrors.RAGError
	if !errors.As(err, &re) {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}

	message := fmt.Sprintf("[%s] %s", re.Code, re.Message)
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", message, re.Suggestion)
	}

	switch {
	case re.Code == ragerrors.ErrCodeEmptyIndex:
		return &MCPError{Code: ErrCodeEmptyIndex, Message: message}
	case re.Code == ragerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case re.Category == ragerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case re.Category == ragerrors.CategoryNetwork,
		re.Code == ragerrors.ErrCodeEmbeddingFailed,
		re.Code == ragerrors.ErrCodeRerankFailed,
		re.Code == ragerrors.ErrCodeOracleProtocol:
		return &MCPError{Code: ErrCodeOracleFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
