package wizard

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks that a platform URL is well-formed
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if u.Host == "" {
		return fmt.Errorf("URL missing host")
	}
	return nil
}

// ValidateServiceAccount checks that a service account looks like an email
func ValidateServiceAccount(account string) error {
	if account == "" {
		return fmt.Errorf("service account cannot be empty")
	}
	at := strings.Index(account, "@")
	if at <= 0 || at == len(account)-1 {
		return fmt.Errorf("service account must be an email address")
	}
	return nil
}

// ValidateServiceKey checks that a service key is present
func ValidateServiceKey(key string) error {
	if key == "" {
		return fmt.Errorf("service key cannot be empty")
	}
	return nil
}
