package validation

import (
	"fmt"
	"net/url"
	"regexp"
)

var giftCodeRegex = regexp.MustCompile(`^[A-Za-z0-9-]{1,16}$`)

// ValidateGiftCode validates the short display code shown next to a gift.
func ValidateGiftCode(code string) error {
	if !giftCodeRegex.MatchString(code) {
		return fmt.Errorf("code must be 1-16 characters and contain only letters, numbers, and hyphens")
	}
	return nil
}

// ValidateURL accepts absolute http(s) URLs and site-relative paths such as /uploads/x.webp.
func ValidateURL(field, raw string) error {
	if len(raw) > 1024 {
		return fmt.Errorf("%s must not exceed 1024 characters", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL", field)
	}
	if u.Scheme == "" && u.Host == "" && len(u.Path) > 1 && u.Path[0] == '/' && u.Path[1] != '/' {
		return nil
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http or https URL", field)
	}
	return nil
}
