// Package compat decides whether two users may be paired and how much they
// have in common. It is pure: no state, no locking, no I/O.
package compat

import (
	"sort"

	"chatmatch/backend/internal/models"
)

// IsCompatible reports whether a and b may be paired.
// The relation is symmetric by construction: each side's rule must accept the other.
// A user is never compatible with themselves.
func IsCompatible(a, b models.User) bool {
	if a.ID == b.ID {
		return false
	}
	return Accepts(a, b) && Accepts(b, a)
}

// Accepts applies the seeker's one-sided rule to the candidate.
//
// A Bisexual seeker defers to the candidate: it accepts whoever would accept it
// back, and accepts any other Bisexual user outright.
func Accepts(seeker, candidate models.User) bool {
	switch seeker.Preference {
	case models.PreferenceStraight:
		opposite, ok := oppositeOf(seeker.Gender)
		return ok && candidate.Gender == opposite &&
			in(candidate.Preference, models.PreferenceStraight, models.PreferenceBisexual)
	case models.PreferenceGay:
		return candidate.Gender == models.GenderMale &&
			in(candidate.Preference, models.PreferenceGay, models.PreferenceBisexual)
	case models.PreferenceLesbian:
		return candidate.Gender == models.GenderFemale &&
			in(candidate.Preference, models.PreferenceLesbian, models.PreferenceBisexual)
	case models.PreferenceBisexual:
		if candidate.Preference == models.PreferenceBisexual {
			return true
		}
		return Accepts(candidate, seeker)
	}
	return false
}

// Overlap returns the interests both users share, sorted.
func Overlap(a, b models.User) []string {
	theirs := b.InterestSet()
	out := make([]string, 0, len(a.Interests))
	seen := make(map[string]struct{}, len(a.Interests))
	for _, tag := range a.Interests {
		if _, ok := theirs[tag]; !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func oppositeOf(g models.Gender) (models.Gender, bool) {
	switch g {
	case models.GenderMale:
		return models.GenderFemale, true
	case models.GenderFemale:
		return models.GenderMale, true
	}
	return "", false
}

func in(p models.Preference, allowed ...models.Preference) bool {
	for _, a := range allowed {
		if p == a {
			return true
		}
	}
	return false
}
