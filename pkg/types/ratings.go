package types

import "github.com/shopspring/decimal"

// RatingSummary aggregates 1..5 star ratings for a product.
type RatingSummary struct {
	Count   int             `json:"count"`
	Average decimal.Decimal `json:"average"`
	Stars   map[int]int     `json:"stars"`
}

// SummarizeRatings ignores values outside 1..5. The average is rounded to
// two places.
func SummarizeRatings(ratings []int) RatingSummary {
	summary := RatingSummary{Average: decimal.Zero, Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	total := 0
	for _, r := range ratings {
		if r < 1 || r > 5 {
			continue
		}
		summary.Stars[r]++
		summary.Count++
		total += r
	}
	if summary.Count > 0 {
		summary.Average = decimal.NewFromInt(int64(total)).
			Div(decimal.NewFromInt(int64(summary.Count))).
			Round(2)
	}
	return summary
}
