// Package routing resolves inbound model strings to rulesets and computes the
// parameter overlay applied to proxied requests. Everything here is pure and
// sits on the request hot path: no I/O, no logging.
package routing

import (
	"errors"
	"strings"

	"modelrules/models"
)

// Separator splits the routing prefix from the model name in a model string.
const Separator = "::"

var (
	// ErrInvalidSeparator is returned when the model string contains more
	// than one separator.
	ErrInvalidSeparator = errors.New("invalid separator usage")
	// ErrInvalidPrefix is returned when the prefix half of the model string
	// is empty.
	ErrInvalidPrefix = errors.New("invalid prefix")
	// ErrInvalidModel is returned when the model half of the model string is
	// empty.
	ErrInvalidModel = errors.New("invalid model")
	// ErrNoMatchingRoute is returned when no ruleset matches the prefix, or
	// no ruleset is flagged default for a bare model string.
	ErrNoMatchingRoute = errors.New("no matching provider route found")
)

// Resolution is the outcome of routing a model string: the matched ruleset
// and the model name with any prefix stripped.
type Resolution struct {
	Ruleset *models.Ruleset
	Model   string
}

// Resolve picks the ruleset addressed by model among the rulesets owned by
// the calling key's user. "prefix::model" selects by prefix; a bare model
// selects the ruleset flagged default. When several rulesets are flagged
// default the first in slice order wins, so the hot path never fails on
// ambiguity.
func Resolve(model string, rulesets []models.Ruleset) (Resolution, error) {
	model = strings.TrimSpace(model)

	switch strings.Count(model, Separator) {
	case 0:
		for i := range rulesets {
			if rulesets[i].IsDefault {
				return Resolution{Ruleset: &rulesets[i], Model: model}, nil
			}
		}
		return Resolution{}, ErrNoMatchingRoute

	case 1:
		prefix, name, _ := strings.Cut(model, Separator)
		if prefix == "" {
			return Resolution{}, ErrInvalidPrefix
		}
		if name == "" {
			return Resolution{}, ErrInvalidModel
		}
		for i := range rulesets {
			if rulesets[i].Prefix == prefix {
				return Resolution{Ruleset: &rulesets[i], Model: name}, nil
			}
		}
		return Resolution{}, ErrNoMatchingRoute

	default:
		return Resolution{}, ErrInvalidSeparator
	}
}
