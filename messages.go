package authclient

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var supportedLanguages = []language.Tag{
	language.English,
	language.Spanish,
}

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error
)

func messageBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("json", json.Unmarshal)

		for _, lang := range supportedLanguages {
			filename := fmt.Sprintf("locales/%s.json", lang.String())
			if _, err := b.LoadMessageFileFS(localeFS, filename); err != nil {
				bundleErr = fmt.Errorf("failed to load translation file %s: %w", filename, err)
				return
			}
		}
		bundle = b
	})
	return bundle, bundleErr
}

// NewLocalizer returns a localizer for the given preferred languages, falling
// back to English. Pass the result to WithLocalizer to localize the SDK's
// user-facing messages.
func NewLocalizer(languages ...string) *i18n.Localizer {
	b, err := messageBundle()
	if err != nil {
		// A broken embedded bundle is a packaging defect; localize calls
		// will fall back to message IDs.
		b = i18n.NewBundle(language.English)
	}
	return i18n.NewLocalizer(b, languages...)
}

// localize resolves a message ID, falling back to the ID itself so a missing
// translation never breaks an error path.
func localize(loc *i18n.Localizer, id string) string {
	if loc == nil {
		loc = NewLocalizer()
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil || msg == "" {
		return id
	}
	return msg
}
