// Package money formats minor-unit amounts the way the banking application
// displays them.
package money

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders cents as a US dollar string with digit grouping:
// 1234567 becomes "$12,345.67" and -500 becomes "-$5.00".
func FormatUSD(minor int64) string {
	sign := ""
	// Negate in uint64 so math.MinInt64 does not overflow.
	abs := uint64(minor)
	if minor < 0 {
		sign = "-"
		abs = uint64(-(minor + 1)) + 1
	}
	return sign + "$" + printer.Sprintf("%d", abs/100) + fmt.Sprintf(".%02d", abs%100)
}

// Dollars returns the whole-dollar part of a minor-unit amount, truncated toward zero.
func Dollars(minor int64) int64 {
	return minor / 100
}
