package exchange

import "fmt"

// ExchangeError represents an error returned by an exchange API.
type ExchangeError struct {
	Exchange  string
	Code      string
	Message   string
	Retryable bool
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Exchange, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Exchange, e.Message)
}

// NewExchangeError creates an exchange error for a failed API call.
func NewExchangeError(exchange, code, message string, retryable bool) *ExchangeError {
	return &ExchangeError{
		Exchange:  exchange,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
}
