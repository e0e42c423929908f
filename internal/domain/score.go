package domain

// ComputePoints awards points with linear decay over the question timer:
// floor((timeLeft / timeLimit) * maxPoints), clamped to [0, maxPoints].
// Expired or invalid timers score zero.
func ComputePoints(timeLeftSeconds, timeLimitSeconds, maxPoints int) int {
	if timeLeftSeconds <= 0 || timeLimitSeconds <= 0 || maxPoints <= 0 {
		return 0
	}
	if timeLeftSeconds >= timeLimitSeconds {
		return maxPoints
	}
	return timeLeftSeconds * maxPoints / timeLimitSeconds
}
