package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/robertmeta/feed-push/model"
)

// UnknownTime is returned when no time can be found anywhere in an entry.
const UnknownTime = "unknown time"

// contentTimePatterns are tried in order against the content body.
var contentTimePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{2}:\d{2})</time>`),
	regexp.MustCompile(`(\d{2}:\d{2}:\d{2})`),
	regexp.MustCompile(`(?i)(\d{1,2}:\d{2}\s*[AP]M)`),
}

var (
	// isoSeparator matches the date/time separator of an ISO-8601 stamp.
	// A bare "T" is not enough: RFC 1123 days like "Tue" and "Thu" carry one.
	isoSeparator = regexp.MustCompile(`\dT`)
	clockPattern = regexp.MustCompile(`\d{2}:\d{2}`)
)

// DisplayTime returns a human-readable time for the entry.
// It never fails; when nothing usable is found it returns UnknownTime.
func DisplayTime(e model.Entry) string {
	for _, re := range contentTimePatterns {
		if m := re.FindStringSubmatch(e.Content); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	stamp := strings.TrimSpace(e.Timestamp())
	if stamp == "" {
		return UnknownTime
	}

	datePart := stamp
	if loc := isoSeparator.FindStringIndex(stamp); loc != nil {
		sep := loc[1] - 1
		datePart = stamp[:sep]
		clock := stripOffset(stamp[sep+1:])
		if strings.Contains(clock, ":") {
			if len(clock) > 5 {
				clock = clock[:5]
			}
			return clock
		}
	} else if m := clockPattern.FindString(stamp); m != "" {
		return m
	}

	d, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return UnknownTime
	}
	return d.Format("01-02")
}

// stripOffset drops a trailing "+HH:MM" / "-HH:MM" zone offset.
func stripOffset(clock string) string {
	if i := strings.IndexAny(clock, "+-"); i >= 0 {
		return clock[:i]
	}
	return clock
}
