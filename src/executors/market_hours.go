package executors

import (
	"fmt"
	"time"
)

// withinMarketHours reports whether the instant falls inside the weekday
// trading window in the given timezone. Holidays are not modeled; a holiday
// cycle simply finds no quotes.
func withinMarketHours(now time.Time, loc *time.Location, open, close string) (bool, error) {
	local := now.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}

	openMin, err := minuteOfDay(open)
	if err != nil {
		return false, err
	}
	closeMin, err := minuteOfDay(close)
	if err != nil {
		return false, err
	}
	current := local.Hour()*60 + local.Minute()
	return current >= openMin && current < closeMin, nil
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid market hours value %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
