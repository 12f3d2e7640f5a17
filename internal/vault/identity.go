package vault

import (
	"math/rand"

	"github.com/listforge/listforge/internal/domain"
)

// Fingerprint pools. One combination is picked when a session is saved and
// reused for every automated action on that session, so the account always
// presents the same client.
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	}

	locales = []string{"en-GB", "en-US", "de-DE", "fr-FR", "nl-NL"}

	// Timezones paired by index with locales so the combination stays
	// plausible.
	timezones = []string{"Europe/London", "America/New_York", "Europe/Berlin", "Europe/Paris", "Europe/Amsterdam"}

	viewports = [][2]int{
		{1920, 1080},
		{1536, 864},
		{1440, 900},
		{1366, 768},
		{2560, 1440},
	}
)

// NewIdentity picks a consistent client fingerprint for a fresh session.
func NewIdentity() domain.ClientIdentity {
	localeIdx := rand.Intn(len(locales))
	viewport := viewports[rand.Intn(len(viewports))]

	return domain.ClientIdentity{
		UserAgent: userAgents[rand.Intn(len(userAgents))],
		Locale:    locales[localeIdx],
		Timezone:  timezones[localeIdx],
		ViewportW: viewport[0],
		ViewportH: viewport[1],
	}
}
