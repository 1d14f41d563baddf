package logic

// Jog moves a teleoperated axis one step in direction dir (-1 or +1).
// Tier 1 steps by 1 µs, any longer touch by 10 µs. A step that would reach
// or cross the limit snaps to the limit instead.
func Jog(pos int, tier uint16, dir int, lo, hi int) int {
	if tier == 0 || dir == 0 {
		return pos
	}
	step := 1
	if tier > 1 {
		step = 10
	}
	next := pos + dir*step
	if dir < 0 {
		if next > lo {
			return next
		}
		return lo
	}
	if next < hi {
		return next
	}
	return hi
}
