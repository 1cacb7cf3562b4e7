package usage

import (
	"math"
	"time"
)

// TimeProgressPercent converts a window into a time-elapsed percentage at the
// given instant. It returns 0 when the window has no usable duration or reset
// time, 0 before the window started, 100 after the reset, and a rounded linear
// interpolation in between. The result is always in [0, 100].
func TimeProgressPercent(w *RateLimitWindow, now time.Time) int {
	if w == nil || w.WindowMinutes == nil || w.ResetsAt == nil {
		return 0
	}
	minutes := *w.WindowMinutes
	if minutes <= 0 {
		return 0
	}

	durationMs := int64(minutes) * 60 * 1000
	resetMs := *w.ResetsAt * 1000
	startMs := resetMs - durationMs
	nowMs := now.UnixMilli()

	if nowMs <= startMs {
		return 0
	}
	if nowMs >= resetMs {
		return 100
	}

	percent := float64(nowMs-startMs) / float64(durationMs) * 100
	return clampPercent(int(math.Round(percent)))
}

// weeklyWindows collects the valid secondary windows for the given profile
// ids, in id order.
func weeklyWindows(ids []string, limits map[string]*RateLimitSnapshot) []*RateLimitWindow {
	var windows []*RateLimitWindow
	for _, id := range ids {
		weekly := limits[id].Weekly()
		if weekly.Valid() {
			windows = append(windows, weekly)
		}
	}
	return windows
}

// GlobalWeeklyAccountCount counts profiles with a valid weekly window. It is
// the denominator shown next to the sum metrics.
func GlobalWeeklyAccountCount(ids []string, limits map[string]*RateLimitSnapshot) int {
	return len(weeklyWindows(ids, limits))
}

// GlobalUsageSum sums used-percent across all valid weekly windows, rounded.
func GlobalUsageSum(ids []string, limits map[string]*RateLimitSnapshot) int {
	windows := weeklyWindows(ids, limits)
	if len(windows) == 0 {
		return 0
	}
	var total float64
	for _, w := range windows {
		total += w.UsedPercent
	}
	return int(math.Round(total))
}

// GlobalUsageAverage averages used-percent across all valid weekly windows,
// rounded and clamped to [0, 100]. Returns 0 when no window is valid.
func GlobalUsageAverage(ids []string, limits map[string]*RateLimitSnapshot) int {
	count := GlobalWeeklyAccountCount(ids, limits)
	if count == 0 {
		return 0
	}
	avg := float64(GlobalUsageSum(ids, limits)) / float64(count)
	return clampPercent(int(math.Round(avg)))
}

// GlobalWeeklyElapsedTimeSum sums TimeProgressPercent across all valid weekly
// windows at the given instant.
func GlobalWeeklyElapsedTimeSum(ids []string, limits map[string]*RateLimitSnapshot, now time.Time) int {
	windows := weeklyWindows(ids, limits)
	total := 0
	for _, w := range windows {
		total += TimeProgressPercent(w, now)
	}
	return total
}

// GlobalWeeklyElapsedTimeAverage averages TimeProgressPercent across all valid
// weekly windows, rounded and clamped to [0, 100]. Returns 0 when no window is
// valid.
func GlobalWeeklyElapsedTimeAverage(ids []string, limits map[string]*RateLimitSnapshot, now time.Time) int {
	count := GlobalWeeklyAccountCount(ids, limits)
	if count == 0 {
		return 0
	}
	avg := float64(GlobalWeeklyElapsedTimeSum(ids, limits, now)) / float64(count)
	return clampPercent(int(math.Round(avg)))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
