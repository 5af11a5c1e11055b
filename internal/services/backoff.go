package services

import "time"

// RetryDelay computes the exponential backoff before retry attempt number
// retryCount (0-indexed): base × factor^retryCount minutes, capped at
// capMinutes. With the defaults (5, 3) the series is 5, 15, 45, 135, … minutes.
func RetryDelay(retryCount, baseMinutes, factor, capMinutes int) time.Duration {
	if baseMinutes <= 0 {
		baseMinutes = 5
	}
	if factor <= 1 {
		factor = 3
	}

	delay := baseMinutes
	for i := 0; i < retryCount; i++ {
		delay *= factor
		if capMinutes > 0 && delay >= capMinutes {
			delay = capMinutes
			break
		}
	}
	if capMinutes > 0 && delay > capMinutes {
		delay = capMinutes
	}
	return time.Duration(delay) * time.Minute
}
