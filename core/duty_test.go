package core

import "testing"

func TestCurrentToDuty(t *testing.T) {
	cases := []struct {
		name    string
		current uint16 // 0.1A
		want    uint32
	}{
		{"out of range defaults to ~6A safe duty", 0, 102},
		{"6A reference point", 60, 102},
		{"mid-range 16A", 160, 272},
		{"top of linear segment 51A", 510, 870},
		{"upper segment 80A", 800, 983},
		{"out of range above max also defaults", 5000, 102},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CurrentToDuty(tc.current)
			if got != tc.want {
				t.Errorf("CurrentToDuty(%d) = %d, want %d", tc.current, got, tc.want)
			}
			if got > 1024 {
				t.Errorf("CurrentToDuty(%d) = %d exceeds hard cap 1024", tc.current, got)
			}
		})
	}
}

// Non-decreasing within each of the two valid linear segments (60..510 and
// 515..800). Across the boundary the duty drops (870 at 510, 866 at 515):
// the upper segment's formula starts below the lower segment's end value.
func TestCurrentToDutyMonotonicWithinValidRange(t *testing.T) {
	segments := [][2]uint16{{60, 510}, {515, 800}}
	for _, seg := range segments {
		var prev uint32
		for c := seg[0]; c <= seg[1]; c += 5 {
			got := CurrentToDuty(c)
			if got < prev {
				t.Fatalf("CurrentToDuty(%d) = %d is less than previous %d", c, got, prev)
			}
			prev = got
		}
	}
}
