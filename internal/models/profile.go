package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownGender is returned when a gender is not one of Male, Female or Other.
	ErrUnknownGender = errors.New("unknown gender")
	// ErrUnknownPreference is returned when a preference is not one of the four supported values.
	ErrUnknownPreference = errors.New("unknown preference")
	// ErrUnknownInterest is returned when an interest tag is outside the fixed vocabulary.
	ErrUnknownInterest = errors.New("unknown interest")
)

// Gender is the declared gender of a user.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Preference is the declared orientation used by the compatibility rule.
type Preference string

const (
	PreferenceStraight Preference = "Straight"
	PreferenceGay      Preference = "Gay"
	PreferenceLesbian  Preference = "Lesbian"
	PreferenceBisexual Preference = "Bisexual"
)

// Interest is a tag from the fixed interest vocabulary.
type Interest string

const (
	InterestMusic      Interest = "Music"
	InterestSports     Interest = "Sports"
	InterestMovies     Interest = "Movies"
	InterestBooks      Interest = "Books"
	InterestTravel     Interest = "Travel"
	InterestFood       Interest = "Food"
	InterestArt        Interest = "Art"
	InterestTechnology Interest = "Technology"
	InterestGaming     Interest = "Gaming"
	InterestFitness    Interest = "Fitness"
)

// Interests lists the whole vocabulary in display order.
var Interests = []Interest{
	InterestMusic, InterestSports, InterestMovies, InterestBooks, InterestTravel,
	InterestFood, InterestArt, InterestTechnology, InterestGaming, InterestFitness,
}

// ParseGender maps user input onto a Gender, ignoring case and surrounding spaces.
func ParseGender(s string) (Gender, error) {
	for _, g := range []Gender{GenderMale, GenderFemale, GenderOther} {
		if strings.EqualFold(strings.TrimSpace(s), string(g)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
}

// ParsePreference maps user input onto a Preference.
func ParsePreference(s string) (Preference, error) {
	for _, p := range []Preference{PreferenceStraight, PreferenceGay, PreferenceLesbian, PreferenceBisexual} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreference, s)
}

// ParseInterest maps a tag onto its canonical spelling in the vocabulary.
func ParseInterest(s string) (Interest, error) {
	for _, i := range Interests {
		if strings.EqualFold(strings.TrimSpace(s), string(i)) {
			return i, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInterest, s)
}

// ParseInterests canonicalizes a list of tags, dropping duplicates and blanks.
// The result is sorted so two users with the same interests store the same array.
func ParseInterests(tags []string) ([]string, error) {
	seen := make(map[Interest]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		i, err := ParseInterest(tag)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, string(i))
	}
	sort.Strings(out)
	return out, nil
}
