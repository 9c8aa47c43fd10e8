package statistics

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// BatchSummary aggregates the optimized files of a single run.
type BatchSummary struct {
	ProcessedCount      int
	TotalOriginalBytes  int64
	TotalOptimizedBytes int64
}

// SavedBytes returns the number of bytes saved across the batch.
func (b BatchSummary) SavedBytes() int64 {
	return b.TotalOriginalBytes - b.TotalOptimizedBytes
}

// SavingsPercent returns the percentage saved across the batch.
func (b BatchSummary) SavingsPercent() float64 {
	return CalculateSavings(b.TotalOriginalBytes, b.TotalOptimizedBytes)
}

// FormatSize renders a byte count with 1024-based units and two decimals,
// e.g. "0.00 B", "1.00 KB". Anything past GB is expressed in TB.
func FormatSize(bytes int64) string {
	size := float64(bytes)
	for _, unit := range sizeUnits {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f TB", size)
}

// CalculateSavings returns the percentage of original saved by optimized.
// A zero original yields 0.
func CalculateSavings(original, optimized int64) float64 {
	if original == 0 {
		return 0
	}
	return float64(original-optimized) / float64(original) * 100
}
