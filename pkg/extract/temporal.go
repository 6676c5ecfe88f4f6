package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration arithmetic uses a flat 30-day month. This is a documented
// approximation: "2 months later" resolves to ref+60d, not calendar-month
// addition.
var unitDays = map[string]int{
	"day":       1,
	"week":      7,
	"fortnight": 14,
	"month":     30,
}

// numberWords maps spelled-out small quantities to values. "a fortnight"
// and "an hour" style articles count as one.
var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12,
}

const numWordAlt = `\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`

var (
	reISO = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	monthAlt   = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	reMonthDay = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?\b`)

	// "3 days ago", "two weeks later", "a fortnight ago", "6 months from now".
	// The plural suffix sits inside the unit group so the phrase slice
	// covers it.
	reRelative = regexp.MustCompile(`(?i)\b(` + numWordAlt + `)\s+((?:day|week|month|fortnight)s?)\s+(ago|earlier|back|later|from now)\b`)

	// "in 3 days", "in two months"
	reInUnits = regexp.MustCompile(`(?i)\bin\s+(` + numWordAlt + `)\s+((?:day|week|month|fortnight)s?)\b`)

	// bare duration with no direction: "3 weeks", "a fortnight"
	reBareUnit = regexp.MustCompile(`(?i)\b(` + numWordAlt + `)\s+(day|week|month|fortnight)s?\b`)

	reDayWord  = regexp.MustCompile(`(?i)\b(yesterday|today|tomorrow)\b`)
	reLastNext = regexp.MustCompile(`(?i)\b(last|next)\s+(week|month|fortnight)\b`)
)

// extractTemporal runs the date and duration patterns in priority order,
// claiming spans as it goes so a later pattern never re-reads text a more
// specific one consumed.
func extractTemporal(text string, ref time.Time, claimed *spanSet, out *Entities) {
	// Absolute forms first: they are the most specific.
	for _, loc := range reISO.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		out.Dates = append(out.Dates, raw)
		if d, err := time.Parse("2006-01-02", raw); err == nil {
			out.NormalizedDates = append(out.NormalizedDates, d.Format("2006-01-02"))
		}
	}

	for _, loc := range reMonthDay.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		out.Dates = append(out.Dates, raw)

		month := monthNumber(text[loc[2]:loc[3]])
		day, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year := ref.Year()
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
		}
		if d, ok := validDate(year, month, day); ok {
			out.NormalizedDates = append(out.NormalizedDates, d)
		}
	}

	// Relative expressions with an explicit quantity resolve to a date and
	// also contribute a duration.
	for _, loc := range reRelative.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		qty := parseQuantity(text[loc[2]:loc[3]])
		unit := singularUnit(text[loc[4]:loc[5]])
		dir := strings.ToLower(text[loc[6]:loc[7]])

		offset := qty * unitDays[unit]
		if dir == "ago" || dir == "earlier" || dir == "back" {
			offset = -offset
		}
		out.Dates = append(out.Dates, text[loc[0]:loc[1]])
		out.NormalizedDates = append(out.NormalizedDates, ref.AddDate(0, 0, offset).Format("2006-01-02"))
		emitUnit(out, text[loc[2]:loc[5]], qty, unit)
	}

	for _, loc := range reInUnits.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		qty := parseQuantity(text[loc[2]:loc[3]])
		unit := singularUnit(text[loc[4]:loc[5]])
		out.Dates = append(out.Dates, text[loc[0]:loc[1]])
		out.NormalizedDates = append(out.NormalizedDates, ref.AddDate(0, 0, qty*unitDays[unit]).Format("2006-01-02"))
		emitUnit(out, text[loc[2]:loc[5]], qty, unit)
	}

	for _, loc := range reDayWord.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		offset := map[string]int{"yesterday": -1, "today": 0, "tomorrow": 1}[strings.ToLower(raw)]
		out.Dates = append(out.Dates, raw)
		out.NormalizedDates = append(out.NormalizedDates, ref.AddDate(0, 0, offset).Format("2006-01-02"))
	}

	for _, loc := range reLastNext.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		unit := strings.ToLower(text[loc[4]:loc[5]])
		offset := unitDays[unit]
		if strings.EqualFold(text[loc[2]:loc[3]], "last") {
			offset = -offset
		}
		out.Dates = append(out.Dates, text[loc[0]:loc[1]])
		out.NormalizedDates = append(out.NormalizedDates, ref.AddDate(0, 0, offset).Format("2006-01-02"))
	}

	// Remaining bare durations carry no direction; they narrow time-range
	// filters but resolve to no date.
	for _, loc := range reBareUnit.FindAllStringSubmatchIndex(text, -1) {
		if !claimed.claim(loc[0], loc[1]) {
			continue
		}
		qty := parseQuantity(text[loc[2]:loc[3]])
		unit := strings.ToLower(text[loc[4]:loc[5]])
		emitUnit(out, text[loc[0]:loc[1]], qty, unit)
	}
}

// emitUnit records the duration phrase as written plus its day-equivalent
// canonical form, skipping the duplicate when they coincide.
func emitUnit(out *Entities, phrase string, qty int, unit string) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	canonical := fmt.Sprintf("%d days", qty*unitDays[unit])
	if qty*unitDays[unit] == 1 {
		canonical = "1 day"
	}
	if phrase != canonical {
		out.TemporalUnits = append(out.TemporalUnits, phrase)
	}
	out.TemporalUnits = append(out.TemporalUnits, canonical)
}

// singularUnit lowercases a matched unit and strips the plural suffix so
// it keys into unitDays.
func singularUnit(s string) string {
	return strings.TrimSuffix(strings.ToLower(s), "s")
}

func parseQuantity(s string) int {
	s = strings.ToLower(s)
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, _ := strconv.Atoi(s)
	return n
}

var monthNumbers = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sept": 9, "sep": 9,
	"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
}

func monthNumber(name string) int {
	return monthNumbers[strings.ToLower(name)]
}

// validDate reports the ISO form of year/month/day when it names a real
// calendar date. time.Date normalizes overflow (Feb 30 -> Mar 2), so the
// round trip is checked.
func validDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return "", false
	}
	return d.Format("2006-01-02"), true
}
