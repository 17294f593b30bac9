package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pinkittys/flowerstory/internal/textutil"
)

var monthPattern = regexp.MustCompile(`(\d{1,2})\s*월`)

// SeasonOfMonth maps a month to its Korean season name.
func SeasonOfMonth(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "봄"
	case time.June, time.July, time.August:
		return "여름"
	case time.September, time.October, time.November:
		return "가을"
	default:
		return "겨울"
	}
}

// inferSeason checks season keywords, then explicit month words, then falls
// back to the month of now.
func (t *RuleTable) inferSeason(text string, now time.Time) string {
	if s, ok := t.Season(text); ok {
		return s
	}
	if m := monthPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			return SeasonOfMonth(time.Month(n))
		}
	}
	return SeasonOfMonth(now.Month())
}

// inferIntent counts meaning and design keywords; ties favor meaning.
func (t *RuleTable) inferIntent(text string) Intent {
	if textutil.CountAny(text, t.Intent.Design) > textutil.CountAny(text, t.Intent.Meaning) {
		return IntentDesign
	}
	return IntentMeaning
}
