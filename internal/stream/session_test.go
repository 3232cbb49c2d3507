package stream

import "testing"

func TestIsErrorLine(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want bool
	}{
		{"通常の進捗行", "frame=  100 fps= 15 q=3.0 size=    1024kB", false},
		{"空行", "", false},
		{"error を含む行", "Error while decoding stream #0:0", true},
		{"大文字のERROR", "[v4l2 @ 0x55] I/O ERROR", true},
		{"invalid を含む行", "[video4linux2 @ 0x55] Invalid argument", true},
		{"大文字小文字混在", "InVaLiD data found", true},
		{"語彙に含まれない警告", "Past duration 0.6 too large", false},
		{"deprecated 警告", "deprecated pixel format used", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isErrorLine(tc.line); got != tc.want {
				t.Errorf("isErrorLine(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}
