package agentcore

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer of the core. Only configuration and
// provider failures end a chat call; tool failures are turned into text and
// parse ambiguity is recovered by the reasoning loop.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrProvider       = errors.New("provider error")
	ErrToolExecution  = errors.New("tool execution error")
	ErrParseAmbiguity = errors.New("parse ambiguity")
)

// ConfigurationError wraps ErrConfiguration with a formatted reason.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ProviderError wraps a failed generation call.
func ProviderError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// ToolExecutionError wraps a failed tool or retrieval call.
func ToolExecutionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrToolExecution, fmt.Sprintf(format, args...))
}
