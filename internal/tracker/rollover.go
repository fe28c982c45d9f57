package tracker

import (
	"context"
	"time"
)

// WatchDay polls the calendar every interval and, when the local date
// changes, clears the materialization memo and calls onRoll with the new
// date. It returns when ctx is done.
func (s *Service) WatchDay(ctx context.Context, interval time.Duration, onRoll func(day string)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.watchDay(ctx, ticker.C, s.cal.Today(), onRoll)
	return nil
}

func (s *Service) watchDay(ctx context.Context, ticks <-chan time.Time, day string, onRoll func(day string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			today := s.cal.Today()
			if today == day {
				continue
			}
			day = today
			s.resetMemo(today)
			s.logger.Info("calendar day rolled over", "date", today)
			if onRoll != nil {
				onRoll(today)
			}
		}
	}
}
