package ytdlp

import "testing"

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want Progress
	}{
		{"[download]  42.3% of 10.00MiB at  1.20MiB/s ETA 00:07", true, Progress{Percent: 42, TotalBytes: 10 << 20, ETA: "00:07"}},
		{"[download]   5.0% of ~  2.00GiB at 3.00MiB/s ETA 11:20 (frag 3/80)", true, Progress{Percent: 5, TotalBytes: 2 << 30, ETA: "11:20"}},
		{"[download] 100% of 1.50KB in 00:00:01", true, Progress{Percent: 100, TotalBytes: 1500}},
		{"[download] Destination: clip_[abc123].mp4", false, Progress{}},
		{"[youtube] abc123: Downloading webpage", false, Progress{}},
		{"", false, Progress{}},
	}

	for _, tt := range tests {
		got, ok := ParseProgressLine(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseProgressLine(%q) = %+v, %v; want %+v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplitByNewlineOrCR(t *testing.T) {
	advance, token, err := splitByNewlineOrCR([]byte("10%\r20%\n"), false)
	if err != nil || advance != 4 || string(token) != "10%" {
		t.Errorf("unexpected split: %d %q %v", advance, token, err)
	}

	advance, token, _ = splitByNewlineOrCR([]byte("tail"), true)
	if advance != 4 || string(token) != "tail" {
		t.Errorf("unexpected final token: %d %q", advance, token)
	}
}
