package logic

// CalibrationFault is the highest raw value the calibration treats as a bad sample.
const CalibrationFault = 10

// ThresholdRatio places the threshold between touched and untouched baselines.
const ThresholdRatio = 0.4

// Baseline accumulates untouched samples into a running average.
// A faulty sample is replaced by the running average of the samples before it.
type Baseline struct {
	sum int
	n   int
}

// Add feeds one raw sample.
func (b *Baseline) Add(raw int) {
	if raw <= CalibrationFault {
		raw = b.Mean()
	}
	b.sum += raw
	b.n++
}

// Mean returns the running average, 0 before any sample.
func (b *Baseline) Mean() int {
	if b.n == 0 {
		return 0
	}
	return b.sum / b.n
}

// Count returns the number of samples fed.
func (b *Baseline) Count() int {
	return b.n
}

// Mean averages touched samples; faults are not filtered here.
func Mean(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, s := range samples {
		sum += s
	}
	return sum / len(samples)
}

// Threshold derives the operating threshold:
// touched + 0.4 * (untouched - touched), truncated and clamped at zero.
func Threshold(touched, untouched int) uint16 {
	th := float64(touched) + ThresholdRatio*float64(untouched-touched)
	if th <= 0 {
		return 0
	}
	if th > 0xffff {
		return 0xffff
	}
	return uint16(th)
}

// DeriveEntry builds the calibration entry from both baselines.
func DeriveEntry(touched, untouched int) Entry {
	return Entry{
		Touched:   clampU16(touched),
		Untouched: clampU16(untouched),
		Threshold: Threshold(touched, untouched),
	}
}

func clampU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}
