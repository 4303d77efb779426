package heuristics

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	timeMarkers = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}:\d{2}`),
		regexp.MustCompile(`\d{1,2} час`),
		regexp.MustCompile(`(?:^|\s)в \d{1,2}(?:\D|$)`),
		regexp.MustCompile(`утром|днем|днём|вечером|ночью`),
		regexp.MustCompile(`\b\d{1,2}\s*(?:am|pm)\b`),
		regexp.MustCompile(`\bat \d{1,2}\b`),
		regexp.MustCompile(`\b(?:morning|afternoon|evening|tonight|noon)\b`),
	}
	dateMarkers = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}\.\d{1,2}(?:\.\d{4})?`),
		regexp.MustCompile(`послезавтра|завтра|сегодня`),
		regexp.MustCompile(`через \d+ дн|через неделю`),
		regexp.MustCompile(`в понедельник|во вторник|в среду|в четверг|в пятницу|в субботу|в воскресенье`),
		regexp.MustCompile(`\b(?:tomorrow|today|tonight|next week)\b`),
		regexp.MustCompile(`\bin \d+ days?\b`),
		regexp.MustCompile(`\b(?:on )?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	}

	clockRe   = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)?`)
	ampmRe    = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	atHourRe  = regexp.MustCompile(`(?:\bat|(?:^|\s)в)\s+(\d{1,2})(?:\s*час\S*)?(?:\D|$)`)
	dmyRe     = regexp.MustCompile(`(?:^|\D)(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?(?:\D|$)`)
	inDaysRe  = regexp.MustCompile(`через (\d+) дн|\bin (\d+) days?\b`)
	weekdayRu = []struct {
		phrase string
		day    time.Weekday
	}{
		{"в понедельник", time.Monday}, {"во вторник", time.Tuesday}, {"в среду", time.Wednesday},
		{"в четверг", time.Thursday}, {"в пятницу", time.Friday}, {"в субботу", time.Saturday},
		{"в воскресенье", time.Sunday},
	}
	weekdayEnRe = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	partOfDay = []struct {
		words []string
		hour  int
	}{
		{[]string{"утром", "morning"}, 9},
		{[]string{"днем", "днём", "afternoon", "noon"}, 14},
		{[]string{"вечером", "evening", "tonight"}, 19},
		{[]string{"ночью"}, 22},
	}
)

// HasTemporalMarkers reports whether text mentions an event together with a
// time or a date. Both conditions are required.
func (a *Analyzer) HasTemporalMarkers(text string) bool {
	lower := strings.ToLower(text)
	if !mentionsAny(lower, a.Rules().EventKeywords) {
		return false
	}
	return matchAny(timeMarkers, lower) || matchAny(dateMarkers, lower)
}

// ParseWhen resolves a start time from relative day words, calendar dates,
// clock times and parts of day, in now's location. ok is false when text
// names neither a day nor a time. A day without a time resolves to 09:00;
// a time without a day resolves to its next occurrence.
func ParseWhen(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	loc := now.Location()
	day, dayFound := parseDay(lower, now)
	hour, minute, timeFound := parseClock(lower)

	switch {
	case !dayFound && !timeFound:
		return time.Time{}, false
	case !timeFound:
		return time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, loc), true
	case !dayFound:
		t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	default:
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
	}
}

func parseDay(lower string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(lower, "послезавтра") || strings.Contains(lower, "day after tomorrow"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(lower, "завтра") || strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(lower, "сегодня") || strings.Contains(lower, "today") || strings.Contains(lower, "tonight"):
		return now, true
	case strings.Contains(lower, "через неделю") || strings.Contains(lower, "next week"):
		return now.AddDate(0, 0, 7), true
	}
	if m := inDaysRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1] + m[2])
		return now.AddDate(0, 0, n), true
	}
	if m := dmyRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		if d >= 1 && d <= 31 && mon >= 1 && mon <= 12 {
			year := now.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			t := time.Date(year, time.Month(mon), d, 0, 0, 0, 0, now.Location())
			if m[3] == "" && t.Before(startOfDay(now)) {
				t = t.AddDate(1, 0, 0)
			}
			return t, true
		}
	}
	if wd, ok := firstWeekday(lower); ok {
		return nextWeekday(now, wd), true
	}
	return time.Time{}, false
}

// firstWeekday returns the weekday named earliest in lower.
func firstWeekday(lower string) (time.Weekday, bool) {
	pos, day := -1, time.Sunday
	for _, w := range weekdayRu {
		if i := strings.Index(lower, w.phrase); i >= 0 && (pos < 0 || i < pos) {
			pos, day = i, w.day
		}
	}
	if m := weekdayEnRe.FindStringSubmatchIndex(lower); m != nil && (pos < 0 || m[0] < pos) {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if strings.ToLower(wd.String()) == lower[m[2]:m[3]] {
				pos, day = m[0], wd
			}
		}
	}
	return day, pos >= 0
}

// maxInflection is how many letters may follow a keyword within one word,
// so "calls" and "напомните" count while "callback" does not.
const maxInflection = 2

// mentionsAny reports whether one of the keywords occurs in lower as a
// word or phrase of its own, allowing a short inflection after it.
func mentionsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && mentions(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func mentions(lower, phrase string) bool {
	for from := 0; from < len(lower); {
		i := strings.Index(lower[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		if !wordRuneBefore(lower, start) && trailingLetters(lower[start+len(phrase):]) <= maxInflection {
			return true
		}
		_, size := utf8.DecodeRuneInString(lower[start:])
		from = start + size
	}
	return false
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func trailingLetters(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) || n > maxInflection {
			break
		}
		n++
	}
	return n
}

func parseClock(lower string) (hour, minute int, ok bool) {
	if m := clockRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		h = adjustAMPM(h, m[3])
		if h < 24 && mm < 60 {
			return h, mm, true
		}
	}
	if m := ampmRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			return adjustAMPM(h, m[2]), 0, true
		}
	}
	if m := atHourRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 24 {
			if h < 8 && strings.Contains(lower, "вечер") {
				h += 12
			}
			return h, 0, true
		}
	}
	for _, p := range partOfDay {
		for _, w := range p.words {
			if strings.Contains(lower, w) {
				return p.hour, 0, true
			}
		}
	}
	return 0, 0, false
}

func adjustAMPM(h int, suffix string) int {
	switch {
	case suffix == "pm" && h < 12:
		return h + 12
	case suffix == "am" && h == 12:
		return 0
	}
	return h
}

func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
