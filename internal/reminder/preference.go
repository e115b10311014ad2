package reminder

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/homestead/internal/model"
)

var (
	ErrInvalidLeadTime = errors.New("lead time must be between 60 and 604800 seconds")
	ErrInvalidName     = errors.New("name is required and must be at most 255 characters")
)

const maxNameLength = 255

// ValidatePreference checks the writable fields of a reminder preference.
func ValidatePreference(name string, leadTime int64) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || utf8.RuneCountInString(name) > maxNameLength {
		return ErrInvalidName
	}
	if leadTime < model.MinLeadTime || leadTime > model.MaxLeadTime {
		return ErrInvalidLeadTime
	}
	return nil
}
