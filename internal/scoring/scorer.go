package scoring

import (
	"math"

	"prediction-league-service/internal/domain"
)

// ScoreEntry scores one entry's answers against the contest's questions.
//
// Only revealed questions count. A revealed question the entrant left blank is simply
// not correct: there is no penalty and no partial credit. The percentage is taken over
// revealed questions and is 0 when nothing has been revealed yet.
func ScoreEntry(questions []domain.Question, answers map[string]bool) domain.ScoreRecord {
	rec := domain.ScoreRecord{TotalQuestions: len(questions)}
	for _, q := range questions {
		if !q.HasAnswer() {
			continue
		}
		rec.AnsweredQuestions++
		if got, ok := answers[q.ID]; ok && got == *q.CorrectAnswer {
			rec.CorrectAnswers++
		}
	}
	rec.Percentage = percent(rec.CorrectAnswers, rec.AnsweredQuestions)
	return rec
}

// percent returns part/whole*100 rounded to one decimal, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return roundTenth(float64(part) / float64(whole) * 100)
}

// roundTenth rounds half to even so that exact .x5 values match the stored reports.
func roundTenth(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
