package solver

import (
	"errors"
	"fmt"
	"time"
)

// ErrInfeasible matches every InfeasibleScheduleError through errors.Is.
var ErrInfeasible = errors.New("infeasible schedule")

// InfeasibleScheduleError reports a request that cannot be served before its
// deadline.
type InfeasibleScheduleError struct {
	Deadline         time.Time
	RequiredMinutes  int
	AvailableMinutes int
}

func (e *InfeasibleScheduleError) Error() string {
	return fmt.Sprintf("infeasible schedule: %d minutes required before %s but only %d available (short by %d)",
		e.RequiredMinutes, e.Deadline.Format(time.RFC3339), e.AvailableMinutes, e.Shortfall())
}

func (e *InfeasibleScheduleError) Is(target error) bool { return target == ErrInfeasible }

// Shortfall is the number of minutes the request exceeds the window by.
func (e *InfeasibleScheduleError) Shortfall() int { return e.RequiredMinutes - e.AvailableMinutes }
