package model

import (
	"regexp"
	"strconv"
	"strings"
)

var exhibitDigits = regexp.MustCompile(`\d+`)

// ParseExhibitNumber извлекает номер экспоната из "7", "Exhibit 7", " exhibit  7 ".
// Берётся первая группа цифр; значение без цифр (или вне диапазона int32) — 0.
func ParseExhibitNumber(raw string) int {
	digits := exhibitDigits.FindString(strings.TrimSpace(raw))
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
