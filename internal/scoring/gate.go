// Package scoring ranks contest entries and aggregates league standings.
//
// Everything here is a pure function over materialized domain values. Lock state is
// never stored; it is derived from the contest deadline and the caller's clock on every
// call, so no function in this package reads the wall clock itself.
package scoring

import (
	"time"

	"prediction-league-service/internal/domain"
)

// IsLocked reports whether the contest deadline has passed at now.
func IsLocked(c domain.Contest, now time.Time) bool {
	return now.After(c.LockAt)
}

// CanModifyQuestions reports whether the question set may still be restructured.
// Lock state does not matter; a single entry freezes the questions.
func CanModifyQuestions(c domain.Contest) bool {
	return len(c.Entries) == 0
}

// HasFullReveal reports whether every question has a revealed answer.
// A contest with no questions is trivially fully revealed.
func HasFullReveal(c domain.Contest) bool {
	for _, q := range c.Questions {
		if !q.HasAnswer() {
			return false
		}
	}
	return true
}

// ResultsVisible is the single precondition for exposing contest or league results.
func ResultsVisible(c domain.Contest, now time.Time) bool {
	return IsLocked(c, now) && HasFullReveal(c)
}

// UnrevealedQuestions returns the questions still waiting for an answer, in order.
func UnrevealedQuestions(c domain.Contest) []domain.Question {
	var out []domain.Question
	for _, q := range c.Questions {
		if !q.HasAnswer() {
			out = append(out, q)
		}
	}
	return out
}
