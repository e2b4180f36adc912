package plan

import "time"

// distanceToVelocity is the distance (µm) needed to go from v1 to v2 (µm/s) at a constant acceleration a (µm/s²).
func distanceToVelocity(v1, v2, a int64) int64 {
	return (v2*v2 - v1*v1) * 1000 / (2 * a) / 1000
}

// BrakingDistance is the distance (µm) a train running at v (µm/s) needs to stop at deceleration (µm/s², positive).
func BrakingDistance(v, deceleration int64) int64 {
	if v <= 0 || deceleration <= 0 {
		return 0
	}
	return distanceToVelocity(v, 0, -deceleration)
}

// BrakingTime is how long a train running at v (µm/s) takes to stop at deceleration (µm/s², positive).
func BrakingTime(v, deceleration int64) time.Duration {
	if v <= 0 || deceleration <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second / time.Duration(deceleration)
}
