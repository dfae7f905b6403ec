package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/gazette/internal/models"
)

// fieldValidator backs the url and datetime field checks
var fieldValidator = validator.New()

// rfc3339Layout is the datetime tag layout for timestamp strings
const rfc3339Layout = "2006-01-02T15:04:05Z07:00"

// cronFieldParser validates 5-field expressions (minute hour dom month dow)
var cronFieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// StrOpts bounds a string field
type StrOpts struct {
	MinLen   int
	MaxLen   int
	Required bool
	Pattern  *regexp.Regexp
}

// Str validates a string field: trims, enforces length bounds and an optional
// pattern. A nil pointer result means the field was absent and not required.
func Str(name string, value interface{}, opts StrOpts) (*string, error) {
	if value == nil {
		if opts.Required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, NewFieldError(name, "must be a string, got %T", value)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		if opts.Required {
			return nil, NewFieldError(name, "must not be blank")
		}
		return &s, nil
	}
	if opts.MinLen > 0 && len(s) < opts.MinLen {
		return nil, NewFieldError(name, "must be at least %d characters", opts.MinLen)
	}
	if opts.MaxLen > 0 && len(s) > opts.MaxLen {
		return nil, NewFieldError(name, "must be at most %d characters", opts.MaxLen)
	}
	if opts.Pattern != nil && !opts.Pattern.MatchString(s) {
		return nil, NewFieldError(name, "does not match required pattern")
	}
	return &s, nil
}

// Int validates an integer field. Accepts int, int64, integral float (the
// JSON decoding of a whole number), and integer strings; rejects fractional
// floats.
func Int(name string, value interface{}, required bool) (*int, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	switch n := value.(type) {
	case int:
		return &n, nil
	case int64:
		v := int(n)
		return &v, nil
	case float64:
		if n != float64(int(n)) {
			return nil, NewFieldError(name, "must be an integer, got %v", n)
		}
		v := int(n)
		return &v, nil
	case string:
		v, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, NewFieldError(name, "must be an integer, got %q", n)
		}
		return &v, nil
	}
	return nil, NewFieldError(name, "must be an integer, got %T", value)
}

// PositiveInt validates an integer field that must be positive, or
// non-negative when zeroAllowed is set
func PositiveInt(name string, value interface{}, zeroAllowed, required bool) (*int, error) {
	v, err := Int(name, value, required)
	if err != nil || v == nil {
		return nil, err
	}
	if zeroAllowed {
		if *v < 0 {
			return nil, NewFieldError(name, "must be >= 0, got %d", *v)
		}
	} else if *v < 1 {
		return nil, NewFieldError(name, "must be >= 1, got %d", *v)
	}
	return v, nil
}

// PositiveFloat validates a number field that must be positive, or
// non-negative when zeroAllowed is set
func PositiveFloat(name string, value interface{}, zeroAllowed, required bool) (*float64, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	var f float64
	switch n := value.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, NewFieldError(name, "must be a number, got %q", n)
		}
		f = parsed
	default:
		return nil, NewFieldError(name, "must be a number, got %T", value)
	}
	if zeroAllowed {
		if f < 0 {
			return nil, NewFieldError(name, "must be >= 0, got %v", f)
		}
	} else if f <= 0 {
		return nil, NewFieldError(name, "must be > 0, got %v", f)
	}
	return &f, nil
}

// Bool validates a boolean field, accepting bool or the recognized string
// forms true/1/yes and false/0/no
func Bool(name string, value interface{}, required bool) (*bool, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	switch b := value.(type) {
	case bool:
		return &b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			v := true
			return &v, nil
		case "false", "0", "no":
			v := false
			return &v, nil
		}
		return nil, NewFieldError(name, "must be a boolean, got %q", b)
	}
	return nil, NewFieldError(name, "must be a boolean, got %T", value)
}

// Datetime validates a timestamp field. Accepts a time.Time or an RFC 3339
// string; the value must carry an explicit UTC offset. Naive strings and
// non-UTC offsets are rejected.
func Datetime(name string, value interface{}, required bool) (*time.Time, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	switch t := value.(type) {
	case time.Time:
		_, offset := t.Zone()
		if offset != 0 {
			return nil, NewFieldError(name, "must be in UTC")
		}
		utc := t.UTC()
		return &utc, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if err := fieldValidator.Var(trimmed, "datetime="+rfc3339Layout); err != nil {
			return nil, NewFieldError(name, "must be an RFC 3339 timestamp with timezone, got %q", t)
		}
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return nil, NewFieldError(name, "must be an RFC 3339 timestamp with timezone, got %q", t)
		}
		_, offset := parsed.Zone()
		if offset != 0 {
			return nil, NewFieldError(name, "must be in UTC, got offset %+d seconds", offset)
		}
		utc := parsed.UTC()
		return &utc, nil
	}
	return nil, NewFieldError(name, "must be a timestamp, got %T", value)
}

// URL validates a URL field. Without a custom pattern the value must be an
// http(s) URL with a non-empty authority.
func URL(name string, value interface{}, maxLen int, required bool, pattern *regexp.Regexp) (*string, error) {
	s, err := Str(name, value, StrOpts{MaxLen: maxLen, Required: required})
	if err != nil || s == nil {
		return nil, err
	}
	if *s == "" {
		if required {
			return nil, NewFieldError(name, "must not be blank")
		}
		return s, nil
	}
	if pattern != nil {
		if !pattern.MatchString(*s) {
			return nil, NewFieldError(name, "is not a valid URL: %q", *s)
		}
		return s, nil
	}
	if err := fieldValidator.Var(*s, "http_url"); err != nil {
		return nil, NewFieldError(name, "is not a valid URL: %q", *s)
	}
	return s, nil
}

// StringList validates a list field whose elements must all be strings
func StringList(name string, value interface{}, minLen int, required bool) ([]string, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	var out []string
	switch list := value.(type) {
	case []string:
		out = list
	case []interface{}:
		out = make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, NewFieldError(name, "element %d must be a string, got %T", i, item)
			}
			out = append(out, s)
		}
	default:
		return nil, NewFieldError(name, "must be a list, got %T", value)
	}
	if len(out) < minLen {
		return nil, NewFieldError(name, "must contain at least %d elements", minLen)
	}
	return out, nil
}

// Dict validates a map field
func Dict(name string, value interface{}, required bool) (map[string]interface{}, error) {
	if value == nil {
		if required {
			return nil, NewFieldError(name, "is required")
		}
		return nil, nil
	}
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, NewFieldError(name, "must be a mapping, got %T", value)
	}
	return m, nil
}

// CronExpression validates a 5-field cron expression. Both 0 and 7 are
// accepted for Sunday in the day-of-week field; the normalized form (7
// rewritten to 0) is returned.
func CronExpression(name string, value interface{}, required bool) (*string, error) {
	s, err := Str(name, value, StrOpts{Required: required})
	if err != nil || s == nil {
		return nil, err
	}
	if *s == "" {
		return nil, nil
	}

	fields := strings.Fields(*s)
	if len(fields) != 5 {
		return nil, NewFieldError(name, "must have exactly 5 fields, got %d", len(fields))
	}

	fields[4] = normalizeSunday(fields[4])
	normalized := strings.Join(fields, " ")

	if _, err := cronFieldParser.Parse(normalized); err != nil {
		return nil, NewFieldError(name, "is not a valid cron expression: %v", err)
	}
	return &normalized, nil
}

// normalizeSunday rewrites 7 to 0 in a day-of-week field so both POSIX
// spellings of Sunday are accepted. The underlying parser bounds the field at
// 0-6 and rejects descending ranges, so a range ending in 7 is expanded into
// "lo-6,0".
func normalizeSunday(dow string) string {
	parts := strings.Split(dow, ",")
	var out []string
	for _, part := range parts {
		tok, step := part, ""
		if i := strings.Index(part, "/"); i >= 0 {
			tok, step = part[:i], part[i:]
		}
		if tok == "7" {
			out = append(out, "0"+step)
			continue
		}
		if i := strings.Index(tok, "-"); i >= 0 && step == "" {
			lo, hi := tok[:i], tok[i+1:]
			if hi == "7" {
				switch lo {
				case "7":
					out = append(out, "0")
				case "0":
					out = append(out, "0-6")
				default:
					out = append(out, lo+"-6", "0")
				}
				continue
			}
		}
		out = append(out, part)
	}
	return strings.Join(out, ",")
}

// Enum validates a field against an allowed value set, case-insensitively.
// Unknown values report the permitted set.
func Enum(name string, value interface{}, allowed []string, required bool) (*string, error) {
	s, err := Str(name, value, StrOpts{Required: required})
	if err != nil || s == nil {
		return nil, err
	}
	if *s == "" {
		return nil, nil
	}
	lowered := strings.ToLower(*s)
	for _, a := range allowed {
		if lowered == a {
			return &a, nil
		}
	}
	return nil, NewFieldError(name, "must be one of %v, got %q", allowed, *s)
}

// TaskArgs validates the composite task_args map: required keys present and
// every recognized key well-typed. The original map is returned unchanged on
// success so nested keys not recognized here survive a round-trip.
func TaskArgs(name string, value interface{}, required bool) (map[string]interface{}, error) {
	args, err := Dict(name, value, required)
	if err != nil || args == nil {
		return nil, err
	}
	if _, err := models.ParseTaskArgs(args); err != nil {
		return nil, NewFieldError(name, "%v", err)
	}
	if links, ok := args["article_links"]; ok {
		list, err := StringList(name+".article_links", links, 0, false)
		if err != nil {
			return nil, err
		}
		for i, link := range list {
			if _, err := URL(fmt.Sprintf("%s.article_links[%d]", name, i), link, 0, true, nil); err != nil {
				return nil, err
			}
		}
	}
	return args, nil
}
