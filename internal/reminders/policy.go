package reminders

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charlesng35/doctracker/internal/models"
)

// MaxIntervalDays bounds intervals accepted through the settings API.
const MaxIntervalDays = 3650

var defaultIntervals = []int{30, 15, 7, 1}

// ErrUserUnresolvable marks an owner whose profile is missing or has no email.
// Their documents are skipped rather than failing the run.
var ErrUserUnresolvable = errors.New("reminders: user unresolvable")

// DefaultIntervals returns a fresh copy of the default reminder schedule.
func DefaultIntervals() []int {
	out := make([]int, len(defaultIntervals))
	copy(out, defaultIntervals)
	return out
}

// Policy is the typed notification preference of one user.
type Policy struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	DisplayName          string `json:"display_name"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	Intervals            []int  `json:"intervals"`
}

// LargestInterval returns the longest lead time of the policy.
func (p Policy) LargestInterval() int {
	largest := 0
	for _, interval := range p.Intervals {
		if interval > largest {
			largest = interval
		}
	}
	return largest
}

// PolicyFromUser builds a policy from a stored profile. Settings are parsed
// once here; malformed values fall back to defaults silently.
func PolicyFromUser(user models.User) (Policy, error) {
	email := strings.TrimSpace(user.Email)
	if user.ID == "" || email == "" {
		return Policy{}, ErrUserUnresolvable
	}

	settings := map[string]any(user.Settings)
	return Policy{
		UserID:               user.ID,
		Email:                email,
		DisplayName:          DisplayName(user.Name, user.FullName, email),
		NotificationsEnabled: NotificationsEnabled(settings),
		Intervals:            ResolveIntervals(settings[models.SettingNotificationIntervals]),
	}, nil
}

// DisplayName picks name, then full name, then the email local part, then "User".
func DisplayName(name, fullName, email string) string {
	if v := strings.TrimSpace(name); v != "" {
		return v
	}
	if v := strings.TrimSpace(fullName); v != "" {
		return v
	}
	if at := strings.Index(email, "@"); at > 0 {
		if local := strings.TrimSpace(email[:at]); local != "" {
			return local
		}
	}
	return "User"
}

// NotificationsEnabled reads the enable flag, treating absent or unreadable values as enabled.
func NotificationsEnabled(settings map[string]any) bool {
	raw, ok := settings[models.SettingNotificationsEnabled]
	if !ok || raw == nil {
		return true
	}
	enabled, ok := asBool(raw)
	if !ok {
		return true
	}
	return enabled
}

// ResolveIntervals parses a stored interval list. The whole list falls back to
// the default when it is absent, empty or holds any entry that is not a
// positive integer. Valid lists are de-duplicated and sorted descending.
func ResolveIntervals(raw any) []int {
	parsed, ok := parseIntervals(raw)
	if !ok {
		return DefaultIntervals()
	}
	return normaliseIntervals(parsed)
}

// ValidateIntervals checks a user supplied list for the settings API and
// returns it normalised.
func ValidateIntervals(intervals []int) ([]int, error) {
	if len(intervals) == 0 {
		return nil, errors.New("at least one interval is required")
	}
	for _, interval := range intervals {
		if interval <= 0 {
			return nil, fmt.Errorf("interval %d must be a positive number of days", interval)
		}
		if interval > MaxIntervalDays {
			return nil, fmt.Errorf("interval %d exceeds %d days", interval, MaxIntervalDays)
		}
	}
	return normaliseIntervals(intervals), nil
}

func normaliseIntervals(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func parseIntervals(raw any) ([]int, bool) {
	var items []any
	switch typed := raw.(type) {
	case []any:
		items = typed
	case []int:
		items = make([]any, len(typed))
		for i, v := range typed {
			items[i] = v
		}
	case []float64:
		items = make([]any, len(typed))
		for i, v := range typed {
			items[i] = v
		}
	default:
		return nil, false
	}
	if len(items) == 0 {
		return nil, false
	}

	out := make([]int, 0, len(items))
	for _, item := range items {
		v, ok := asPositiveInt(item)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func asPositiveInt(value any) (int, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}
