// Package datefmt recognises and converts the date shapes found on statements.
package datefmt

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Canonical is the single calendar format dates are stored in.
const Canonical = "2006-01-02"

// Generic is the ordered list of layouts tried when no template says otherwise.
// Day-first forms come before month-first ones.
var Generic = []string{
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"1/2/2006",
	"2/1/06",
	"06-1-2",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 Jan 06",
	"2-Jan-06",
	"2 January 2006",
	"Jan 2, 2006",
	"2.1.2006",
}

// TokenPattern matches a date-shaped token anywhere in a line.
var TokenPattern = regexp.MustCompile(`(?i)\b(` +
	`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}` +
	`|\d{4}[/-]\d{1,2}[/-]\d{1,2}` +
	`|\d{1,2}\.\d{1,2}\.\d{4}` +
	`|\d{1,2}[\s-](?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[\s-]\d{2,4}` +
	`)\b`)

var periodPattern = regexp.MustCompile(`(?i)(.+?)\s+(?:to|-|–|until|through)\s+(.+)`)

// Parse tries each layout in order and returns the first successful parse.
// With no layouts the Generic list is used.
func Parse(s string, layouts ...string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(layouts) == 0 {
		layouts = Generic
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Normalize returns s in the Canonical format.
func Normalize(s string, layouts ...string) (string, bool) {
	if t, err := time.Parse(Canonical, strings.TrimSpace(s)); err == nil {
		return t.Format(Canonical), true
	}
	t, err := Parse(s, layouts...)
	if err != nil {
		return s, false
	}
	return t.Format(Canonical), true
}

// FindToken returns the first date token in line and its byte offsets.
func FindToken(line string) (string, []int) {
	loc := TokenPattern.FindStringIndex(line)
	if loc == nil {
		return "", nil
	}
	return line[loc[0]:loc[1]], loc
}

// StartsWithDate reports whether line opens with a date token.
func StartsWithDate(line string) bool {
	line = strings.TrimSpace(line)
	_, loc := FindToken(line)
	return loc != nil && loc[0] < 3
}

// ParsePeriod splits "01/01/2025 to 31/01/2025" into canonical start and end.
func ParsePeriod(s string, layouts ...string) (string, string, bool) {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", false
	}
	start, ok1 := Normalize(periodSide(m[1]), layouts...)
	end, ok2 := Normalize(periodSide(m[2]), layouts...)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return start, end, true
}

// periodSide prefers a date token over the surrounding words.
func periodSide(s string) string {
	if tok, loc := FindToken(s); loc != nil {
		return tok
	}
	return strings.Trim(s, " ,:")
}

var strftime = strings.NewReplacer(
	"%d", "2",
	"%e", "2",
	"%m", "1",
	"%Y", "2006",
	"%y", "06",
	"%b", "Jan",
	"%B", "January",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%%", "%",
)

// Layout converts a strftime-style format such as "%d/%m/%Y" to a Go layout.
// Day and month accept one or two digits. Go layouts pass through unchanged.
func Layout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	return strftime.Replace(format)
}
