package decode

// ptsToMs rescales a timestamp from a num/den stream time base to
// milliseconds. Pure integer math, rounding toward zero.
func ptsToMs(pts int64, tbNum, tbDen int) int64 {
	if tbDen == 0 || pts < 0 {
		return 0
	}
	return pts * int64(tbNum) * 1000 / int64(tbDen)
}

// msToPTS is the inverse of ptsToMs: milliseconds to stream time base units.
func msToPTS(ms int64, tbNum, tbDen int) int64 {
	if tbNum == 0 {
		return 0
	}
	return ms * int64(tbDen) / (int64(tbNum) * 1000)
}
