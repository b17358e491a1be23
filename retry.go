package enc28j60

import "time"

// retry calls poll until it reports done, returns an error or attempts
// calls have been made. sleep is called with interval between attempts.
// It returns errRetryBudget when poll never reported done.
func retry(sleep func(time.Duration), interval time.Duration, attempts int, poll func() (done bool, err error)) error {
	for i := 0; i < attempts; i++ {
		done, err := poll()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i+1 < attempts {
			sleep(interval)
		}
	}
	return errRetryBudget
}

// attemptsFor returns the number of polls at interval that fit in timeout,
// at least one.
func attemptsFor(timeout, interval time.Duration) int {
	n := int(ceildiv(timeout, interval))
	if n < 1 {
		n = 1
	}
	return n
}
