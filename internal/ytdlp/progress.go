package ytdlp

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	rePct     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reOf      = regexp.MustCompile(`\bof\s+~?\s*([0-9.]+)\s*([KMGT]?i?B)\b`)
	reETA     = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	sizeUnits = map[string]float64{
		"B":   1,
		"KB":  1e3,
		"MB":  1e6,
		"GB":  1e9,
		"TB":  1e12,
		"KiB": 1 << 10,
		"MiB": 1 << 20,
		"GiB": 1 << 30,
		"TiB": 1 << 40,
	}
)

// Progress is one parsed "[download]" line.
type Progress struct {
	Percent    int
	TotalBytes int64
	ETA        string
}

// ParseProgressLine reads yt-dlp's "[download]  42.0% of ~10.00MiB at
// 1.2MiB/s ETA 00:07" lines. Other lines report false.
func ParseProgressLine(line string) (Progress, bool) {
	l := strings.TrimSpace(line)
	if !strings.HasPrefix(l, "[download]") {
		return Progress{}, false
	}

	m := rePct.FindStringSubmatch(l)
	if len(m) < 2 {
		return Progress{}, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}

	p := Progress{Percent: min(int(pct), 100)}

	if m := reOf.FindStringSubmatch(l); len(m) > 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if mult, ok := sizeUnits[m[2]]; ok {
				p.TotalBytes = int64(v * mult)
			}
		}
	}

	if m := reETA.FindStringSubmatch(l); len(m) > 1 {
		p.ETA = m[1]
	}

	return p, true
}
