package store

import (
	"math"

	"github.com/dustin/go-humanize"

	"github.com/lamim/medibill/pkg/models"
)

// Total sums item costs, rounded to paise
func Total(items []models.BillItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Cost
	}
	return roundPaise(total)
}

// FormatRupees renders an amount as ₹12,345 or ₹1,234.5
func FormatRupees(amount float64) string {
	return "₹" + humanize.Commaf(roundPaise(amount))
}

func roundPaise(v float64) float64 {
	return math.Round(v*100) / 100
}
