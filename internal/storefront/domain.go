package storefront

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidDomain reports input that cannot be reduced to a hostname.
var ErrInvalidDomain = errors.New("invalid domain format")

// NormalizeDomain reduces a free-form domain or URL to a bare lowercase
// hostname without a leading "www.".
func NormalizeDomain(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidDomain
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", ErrInvalidDomain
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") || len(host) <= 3 {
		return "", ErrInvalidDomain
	}
	return host, nil
}
