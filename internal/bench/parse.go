package bench

import (
	"regexp"
	"sort"
	"strconv"
)

// Kernel binaries report elapsed seconds on a labeled line, e.g.
//
//	time= 1.234567
//
// The labeled form is the primary contract. Output with no labeled line
// falls back to the last bare floating-point token, which is what classic
// PolyBench -DPOLYBENCH_TIME builds print. In both forms the last
// occurrence wins, so kernels printing intermediate numbers still work as
// long as the timing value comes out last.
var (
	labeledRe = regexp.MustCompile(`(?mi)^\s*time\s*[:=]\s*([0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?)\s*$`)
	floatRe   = regexp.MustCompile(`[0-9]+\.[0-9]+`)
)

// ParseElapsed extracts the elapsed-seconds value from a kernel's combined
// output. ok is false when no parseable value is present; callers treat
// that as a kernel failure rather than a zero-time run.
func ParseElapsed(output string) (secs float64, ok bool) {
	if matches := labeledRe.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
		if err == nil {
			return v, true
		}
	}
	if matches := floatRe.FindAllString(output, -1); len(matches) > 0 {
		v, err := strconv.ParseFloat(matches[len(matches)-1], 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// Representative reduces timing samples to one value: samples are sorted,
// the min and max are dropped when trimming is on and at least 3 samples
// exist, and the rest are averaged.
func Representative(samples []float64, trim bool) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64{}, samples...)
	sort.Float64s(sorted)
	if trim && len(sorted) >= 3 {
		sorted = sorted[1 : len(sorted)-1]
	}
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return sum / float64(len(sorted))
}
