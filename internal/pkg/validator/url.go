package validator

import (
	"errors"
	"net/url"
	"strings"
)

// ValidateHTTPSURL checks that raw is an absolute https URL with a host.
func ValidateHTTPSURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid url format")
	}

	if u.Scheme != "https" {
		return errors.New("url must use https")
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	if u.User != nil {
		return errors.New("url must not embed credentials")
	}

	return nil
}
