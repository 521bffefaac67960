// Package validate provides input validation for the post handlers.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

var userRx = regexp.MustCompile(`^[a-zA-Z0-9_\-.]{1,64}$`)

const maxContentLen = 10_000

// UserName checks that the username is present and matches the allowed pattern.
func UserName(u string) error {
	if !userRx.MatchString(strings.TrimSpace(u)) {
		return errors.New("invalid username")
	}
	return nil
}

// Content checks that post content is non-empty and within bounds.
func Content(c string) error {
	c = strings.TrimSpace(c)
	if c == "" {
		return errors.New("content required")
	}
	if len(c) > maxContentLen {
		return errors.New("content too long")
	}
	return nil
}

// PostID checks that a post identifier is present.
func PostID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("postid required")
	}
	return nil
}
