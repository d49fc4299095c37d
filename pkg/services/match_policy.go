package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/kudwa-ai/kudwa-engine/pkg/config"
)

// MatchPolicy turns an entity name into the key used to detect duplicates.
// Two names with the same key refer to the same entity within a class.
type MatchPolicy interface {
	Name() string
	Key(name string) string
}

// ExactMatchPolicy matches names that differ only in case and whitespace.
type ExactMatchPolicy struct{}

func (ExactMatchPolicy) Name() string { return config.MatchPolicyExact }

func (ExactMatchPolicy) Key(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// InflectionMatchPolicy additionally ignores punctuation and plural forms,
// so "Acme Holdings, Inc." and "acme holding inc" share a key.
type InflectionMatchPolicy struct{}

func (InflectionMatchPolicy) Name() string { return config.MatchPolicyInflection }

func (InflectionMatchPolicy) Key(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, name)

	words := strings.Fields(cleaned)
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}
	return strings.Join(words, " ")
}

// NewMatchPolicy returns the policy configured under review.match_policy.
func NewMatchPolicy(name string) (MatchPolicy, error) {
	switch name {
	case "", config.MatchPolicyExact:
		return ExactMatchPolicy{}, nil
	case config.MatchPolicyInflection:
		return InflectionMatchPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown match policy %q", name)
}
