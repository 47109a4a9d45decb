// Package request holds HTTP request bodies and their validation.
package request

import (
	"strings"

	"tubedl/internal/errs"
)

// Info is the body of POST /v1/info.
type Info struct {
	URL string `json:"url"`
}

// Validate checks that a URL was given. Its format is checked by the provider.
func (i *Info) Validate() error {
	i.URL = strings.TrimSpace(i.URL)
	if i.URL == "" {
		return errs.ErrInvalidURL
	}

	return nil
}
