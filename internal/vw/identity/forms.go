package identity

import (
	"fmt"
	"io"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Form is a scraped HTML form: its resolved action and hidden inputs.
type Form struct {
	Action string
	Fields url.Values
}

// ScrapeForm reads the form matched by selector from an HTML page served at
// base. Hidden inputs and prefilled named inputs are kept.
func ScrapeForm(body io.Reader, base *url.URL, selector string) (Form, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Form{}, fmt.Errorf("unable to parse page: %w", err)
	}
	form := doc.Find(selector).First()
	if form.Length() == 0 {
		return Form{}, fmt.Errorf("no form matching %q", selector)
	}
	action, ok := form.Attr("action")
	if !ok {
		return Form{}, fmt.Errorf("form %q has no action", selector)
	}
	resolved, err := base.Parse(action)
	if err != nil {
		return Form{}, fmt.Errorf("invalid form action %q: %w", action, err)
	}
	fields := url.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, hasValue := input.Attr("value")
		inputType, _ := input.Attr("type")
		if inputType == "hidden" || hasValue {
			fields.Set(name, value)
		}
	})
	for _, required := range []string{"_csrf", "relayState", "hmac"} {
		if fields.Get(required) == "" {
			return Form{}, fmt.Errorf("form %q is missing %s", selector, required)
		}
	}
	return Form{Action: resolved.String(), Fields: fields}, nil
}

// ScrapeMetaCsrf reads the csrf token the portal puts in a meta tag.
func ScrapeMetaCsrf(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("unable to parse page: %w", err)
	}
	token, ok := doc.Find("meta[name=_csrf]").Attr("content")
	if !ok || token == "" {
		return "", fmt.Errorf("no csrf meta tag")
	}
	return token, nil
}
