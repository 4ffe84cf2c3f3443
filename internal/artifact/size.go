package artifact

import "fmt"

var sizeUnits = []string{"", "K", "M", "G", "T", "P", "E", "Z"}

// FormatSize scales a byte count by 1024 with two decimals:
// 1253656 -> "1.20MB", 0 -> "0.00B".
func FormatSize(b int64) string {
	v := float64(b)
	for _, unit := range sizeUnits {
		if v < 1024 {
			return fmt.Sprintf("%.2f%sB", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2fYB", v)
}
