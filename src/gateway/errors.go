package gateway

import (
	"errors"
	"fmt"
)

// ExchangeError is a coded rejection returned by the exchange REST API.
type ExchangeError struct {
	Code    int
	Message string
}

func (e *ExchangeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("exchange error %d: %s", e.Code, GetErrorMsg(e.Code))
}

// IsOrderNotFound reports whether err is the exchange's "order does not
// exist" rejection.
func IsOrderNotFound(err error) bool {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Code == ErrCodeOrderNotFound
	}
	return false
}
