package input

import (
	"errors"
	"fmt"
	"time"
)

// execute performs a on kb, pausing dwell between every transition.
// For a combination, every hold key that was pressed is released in reverse
// order before execute returns, even when a tap step fails.
func execute(kb Keyboard, a Action, dwell time.Duration, sleep func(time.Duration)) (err error) {
	switch a.Kind {
	case SingleKey:
		if err := kb.Press(a.Key); err != nil {
			return fmt.Errorf("press %s: %w", a.Key, err)
		}
		sleep(dwell)
		if err := kb.Release(a.Key); err != nil {
			return fmt.Errorf("release %s: %w", a.Key, err)
		}
		return nil

	case Combination:
		held := make([]Key, 0, len(a.Hold))
		defer func() {
			for i := len(held) - 1; i >= 0; i-- {
				if rerr := kb.Release(held[i]); rerr != nil {
					err = errors.Join(err, fmt.Errorf("release %s: %w", held[i], rerr))
				}
				sleep(dwell)
			}
		}()

		for _, k := range a.Hold {
			if err := kb.Press(k); err != nil {
				return fmt.Errorf("hold %s: %w", k, err)
			}
			held = append(held, k)
			sleep(dwell)
		}
		for _, k := range a.Tap {
			if err := kb.Press(k); err != nil {
				return fmt.Errorf("press %s: %w", k, err)
			}
			sleep(dwell)
			if err := kb.Release(k); err != nil {
				return fmt.Errorf("release %s: %w", k, err)
			}
			sleep(dwell)
		}
		return nil

	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}
