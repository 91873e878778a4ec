package models

import "time"

// PopupData is what the popup renders: the latest snapshot plus session meta
type PopupData struct {
	Counts    Counts     `json:"counts"`
	NewCounts Counts     `json:"newCounts"`
	SignedIn  bool       `json:"signedIn"`
	Username  string     `json:"username"`
	AutoTheme string     `json:"autoTheme"`
	Updating  bool       `json:"updating"`
	LastCheck *time.Time `json:"lastCheck,omitempty"`
	Badge     string     `json:"badge"`

	OptionsData
}

// OptionsData is shared by the popup and the options screen
type OptionsData struct {
	Version string  `json:"version"`
	Prefs   Options `json:"prefs"`
	Theme   string  `json:"theme"`
}
