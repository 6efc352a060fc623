package utils

import (
	"strconv"
	"strings"
)

// FormatMoney formats an amount with two decimals. Zero is empty so an
// unknown amount never overwrites a target value with "0.00".
func FormatMoney(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatPositive formats a count or id. Values below one are empty.
func FormatPositive(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// JoinNonEmpty joins the non-blank parts with sep.
func JoinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
