package tariff

import (
	"errors"
	"fmt"
)

// ErrInvalidTariff matches every InvalidTariffError through errors.Is.
var ErrInvalidTariff = errors.New("invalid tariff")

// InvalidTariffError reports malformed or insufficient price data.
type InvalidTariffError struct {
	Reason string
	Err    error
}

func (e *InvalidTariffError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid tariff: %s: %v", e.Reason, e.Err)
	}
	return "invalid tariff: " + e.Reason
}

func (e *InvalidTariffError) Is(target error) bool { return target == ErrInvalidTariff }

func (e *InvalidTariffError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &InvalidTariffError{Reason: fmt.Sprintf(format, args...)}
}
