package options

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

// Option keys accepted by updateOptions
const (
	KeyBadgeColor               = "badgeColor"
	KeyPreferredDomain          = "preferredDomain"
	KeyTheme                    = "theme"
	KeyUpdateInterval           = "updateInterval"
	KeyNotifEnabled             = "notifEnabled"
	KeyNotifSound               = "notifSound"
	KeyNotifTimeout             = "notifTimeout"
	KeyNotifIcons               = "notifIcons"
	KeyBellIconStyle            = "bellIconStyle"
	KeyChatIconStyle            = "chatIconStyle"
	KeyWatchIconStyle           = "watchIconStyle"
	KeyWatchDisabled            = "watchDisabled"
	KeyFeedbackDisabled         = "feedbackDisabled"
	KeyUseSyncStorage           = "useSyncStorage"
	KeyBetaNotificationsSupport = "betaNotificationsSupport"
)

var badgeColorPattern = regexp.MustCompile(`^#[a-fA-F\d]{6}$`)

// Apply validates raw as the new value for key and, when valid, writes it into
// opts. The returned messages are empty on success.
func Apply(opts *models.Options, key string, raw json.RawMessage, allowedDomains []string) []string {
	switch key {
	case KeyBadgeColor:
		value, ok := decodeString(raw)
		if !ok {
			return []string{"Badge color type is invalid"}
		}
		if !badgeColorPattern.MatchString(value) {
			return []string{"Badge color format is invalid (must be #RRGGBB)"}
		}
		opts.BadgeColor = value
	case KeyPreferredDomain:
		value, ok := decodeString(raw)
		if !ok || !contains(allowedDomains, value) {
			return []string{"The domain is invalid"}
		}
		opts.PreferredDomain = value
	case KeyTheme:
		value, ok := decodeString(raw)
		if !ok || !contains(models.Themes, value) {
			return []string{"The theme is invalid"}
		}
		opts.Theme = value
	case KeyUpdateInterval:
		value, ok := decodeInt(raw)
		if !ok {
			return []string{"The update interval must be a number"}
		}
		if value < 1 {
			return []string{"The update interval cannot be less than 1 minute"}
		}
		opts.UpdateInterval = value
	case KeyNotifTimeout:
		value, ok := decodeInt(raw)
		if !ok {
			return []string{"The notification timeout must be a number"}
		}
		if value < 0 {
			return []string{"The notification timeout must be greater than or equal to 0 seconds"}
		}
		opts.NotifTimeout = value
	case KeyNotifEnabled:
		return applyBool(raw, &opts.NotifEnabled, "Invalid value for notification enable/disable toggle")
	case KeyNotifSound:
		return applyBool(raw, &opts.NotifSound, "Invalid value for notification sound on/off toggle")
	case KeyNotifIcons:
		return applyBool(raw, &opts.NotifIcons, "Invalid value for notification button icons on/off toggle")
	case KeyUseSyncStorage:
		return applyBool(raw, &opts.UseSyncStorage, "Invalid value for synchronize read state toggle")
	case KeyBetaNotificationsSupport:
		return applyBool(raw, &opts.BetaNotificationsSupport, "Invalid value for beta notifications support toggle")
	case KeyBellIconStyle:
		return applyIconStyle(raw, &opts.BellIconStyle, "The bell icon style is invalid")
	case KeyChatIconStyle:
		return applyIconStyle(raw, &opts.ChatIconStyle, "The chat icon style is invalid")
	case KeyWatchIconStyle:
		return applyIconStyle(raw, &opts.WatchIconStyle, "The watch icon style is invalid")
	case KeyWatchDisabled:
		values, ok := decodeStringList(raw, models.IsValidWatchType)
		if !ok {
			return []string{"The disabled watch message types must be an array"}
		}
		opts.WatchDisabled = values
	case KeyFeedbackDisabled:
		values, ok := decodeStringList(raw, models.IsValidFeedbackType)
		if !ok {
			return []string{"The disabled feedback message types must be an array"}
		}
		opts.FeedbackDisabled = values
	default:
		return []string{fmt.Sprintf("Missing handler for setting %s", key)}
	}

	return nil
}

func applyBool(raw json.RawMessage, dst *bool, message string) []string {
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{message}
	}
	*dst = value
	return nil
}

func applyIconStyle(raw json.RawMessage, dst *string, message string) []string {
	value, ok := decodeString(raw)
	if !ok || !contains(models.IconStyles, value) {
		return []string{message}
	}
	*dst = value
	return nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// decodeInt accepts JSON numbers and numeric strings in the int32 range,
// truncating fractions
func decodeInt(raw json.RawMessage) (int, bool) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}

	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	}
	return 0, false
}

// decodeStringList decodes an array and silently drops entries valid rejects
func decodeStringList(raw json.RawMessage, valid func(string) bool) ([]string, bool) {
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if ok && valid(s) && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out, true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
