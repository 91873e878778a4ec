package monitoring

import (
	"regexp"
	"strings"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

var themeClassPattern = regexp.MustCompile(`theme-(light|dark)`)

// ThemeFromBodyClass infers the site theme from the body class attribute
func ThemeFromBodyClass(bodyClass string) string {
	if strings.Contains(bodyClass, "light-green") {
		return "green"
	}
	if match := themeClassPattern.FindStringSubmatch(bodyClass); match != nil {
		return match[1]
	}
	return models.Themes[0]
}

// ResolveTheme returns the configured theme, substituting the inferred one for auto
func ResolveTheme(setting, autoTheme string) string {
	if setting != "auto" {
		return setting
	}
	if autoTheme == "" {
		return models.Themes[0]
	}
	return autoTheme
}
