package countdown

import "fmt"

const (
	warningThreshold  = 5 * 60
	criticalThreshold = 60
)

// Format renders seconds as MM:SS, or HH:MM:SS from one hour up.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// IsWarning is true within the last five minutes, before the critical minute.
func IsWarning(seconds int) bool {
	return seconds <= warningThreshold && seconds > criticalThreshold
}

// IsCritical is true within the last minute.
func IsCritical(seconds int) bool {
	return seconds <= criticalThreshold
}

func SnapshotOf(seconds int) Snapshot {
	return Snapshot{
		Remaining: seconds,
		Display:   Format(seconds),
		Warning:   IsWarning(seconds),
		Critical:  IsCritical(seconds),
	}
}
