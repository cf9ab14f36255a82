package domain

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

var binaryUnits = []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}

// FormatSize renders a byte count with binary units rounded to at most two
// decimals, e.g. 1024 -> "1 KiB", 1800 -> "1.76 KiB". A value that rounds up
// to 1024 moves to the next unit. Counts below 1 KiB are written in bytes:
// "0 bytes", "1 byte", "512 bytes".
func FormatSize(n int64) string {
	if n < 1024 {
		if n == 1 {
			return "1 byte"
		}
		return strconv.FormatInt(n, 10) + " bytes"
	}

	// Pick the largest unit whose divider does not exceed n.
	value := float64(n)
	divider := float64(1024)
	unit := 0
	for unit < len(binaryUnits)-1 && value >= divider*1024 {
		divider *= 1024
		unit++
	}

	rounded := roundTwo(value / divider)
	if rounded >= 1024 && unit < len(binaryUnits)-1 {
		divider *= 1024
		unit++
		rounded = roundTwo(value / divider)
	}
	return humanize.FtoaWithDigits(rounded, 2) + " " + binaryUnits[unit]
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
