package models

// Options is the user-configurable settings set
type Options struct {
	BadgeColor               string   `json:"badgeColor" yaml:"badgeColor"`
	PreferredDomain          string   `json:"preferredDomain" yaml:"preferredDomain"`
	Theme                    string   `json:"theme" yaml:"theme"`
	UpdateInterval           int      `json:"updateInterval" yaml:"updateInterval"` // minutes
	NotifEnabled             bool     `json:"notifEnabled" yaml:"notifEnabled"`
	NotifSound               bool     `json:"notifSound" yaml:"notifSound"`
	NotifTimeout             int      `json:"notifTimeout" yaml:"notifTimeout"` // seconds, 0 keeps it open
	NotifIcons               bool     `json:"notifIcons" yaml:"notifIcons"`
	BellIconStyle            string   `json:"bellIconStyle" yaml:"bellIconStyle"`
	ChatIconStyle            string   `json:"chatIconStyle" yaml:"chatIconStyle"`
	WatchIconStyle           string   `json:"watchIconStyle" yaml:"watchIconStyle"`
	WatchDisabled            []string `json:"watchDisabled" yaml:"watchDisabled"`
	FeedbackDisabled         []string `json:"feedbackDisabled" yaml:"feedbackDisabled"`
	UseSyncStorage           bool     `json:"useSyncStorage" yaml:"useSyncStorage"`
	BetaNotificationsSupport bool     `json:"betaNotificationsSupport" yaml:"betaNotificationsSupport"`
}

// Themes accepted by the theme option. The first entry is the fallback for auto detection.
var Themes = []string{"dark", "light", "green", "auto"}

// IconStyles accepted by the three icon style options
var IconStyles = []string{"black", "white"}

// DefaultOptions returns the settings used on first run
func DefaultOptions(preferredDomain string) Options {
	return Options{
		BadgeColor:       "#3a4e27",
		PreferredDomain:  preferredDomain,
		Theme:            "auto",
		UpdateInterval:   2,
		NotifEnabled:     true,
		NotifSound:       true,
		NotifTimeout:     15,
		NotifIcons:       true,
		BellIconStyle:    IconStyles[0],
		ChatIconStyle:    IconStyles[0],
		WatchIconStyle:   IconStyles[0],
		WatchDisabled:    []string{},
		FeedbackDisabled: []string{},
		UseSyncStorage:   true,
	}
}

// Clone returns a copy that does not share the disabled slices
func (o Options) Clone() Options {
	out := o
	out.WatchDisabled = append([]string{}, o.WatchDisabled...)
	out.FeedbackDisabled = append([]string{}, o.FeedbackDisabled...)
	return out
}
