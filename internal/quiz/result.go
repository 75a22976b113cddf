package quiz

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
)

// Compute подсчитывает результат сессии. Функция чистая.
//
// Ответ верен только при строгом совпадении с правильным. Вопросы без ответа
// не попадают ни в верные, ни в неверные: их видно лишь по тому, что
// AnsweredQuestions меньше TotalQuestions.
func Compute(questions []models.Question, answers map[int]string, timeUsedSeconds int) models.Result {
	result := models.Result{
		TotalQuestions:  len(questions),
		TimeUsed:        timeUsedSeconds,
		QuestionResults: make([]models.QuestionResult, 0, len(questions)),
	}

	for i, question := range questions {
		answer, answered := answers[i]
		isCorrect := answered && answer == question.CorrectAnswer

		if answered {
			result.AnsweredQuestions++
		}
		if isCorrect {
			result.CorrectAnswers++
		}

		result.QuestionResults = append(result.QuestionResults, models.QuestionResult{
			Question:      question.Question,
			UserAnswer:    answer,
			IsCorrect:     isCorrect,
			CorrectAnswer: question.CorrectAnswer,
			Category:      question.Category,
			Difficulty:    question.Difficulty,
			AllAnswers:    question.DisplayAnswers(),
		})
	}

	result.IncorrectAnswers = result.AnsweredQuestions - result.CorrectAnswers
	result.Score = scorePercent(result.CorrectAnswers, result.TotalQuestions)

	return result
}

// scorePercent округляет 100*correct/total половиной вверх.
func scorePercent(correct, total int) int {
	if total <= 0 {
		return 0
	}

	return (200*correct + total) / (2 * total)
}

// ExportCSV экспортирует разбор результата в CSV.
func ExportCSV(result models.Result) ([]byte, error) {
	rows := make([][]string, 0, len(result.QuestionResults)+2)
	rows = append(rows, []string{
		"Number",
		"Question",
		"Category",
		"Difficulty",
		"UserAnswer",
		"CorrectAnswer",
		"IsCorrect",
		"AllAnswers",
	})

	for i, qr := range result.QuestionResults {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			qr.Question,
			qr.Category,
			qr.Difficulty,
			qr.UserAnswer,
			qr.CorrectAnswer,
			strconv.FormatBool(qr.IsCorrect),
			strings.Join(qr.AllAnswers, " | "),
		})
	}

	rows = append(rows, []string{
		"Total",
		fmt.Sprintf("score=%d%%", result.Score),
		fmt.Sprintf("answered=%d/%d", result.AnsweredQuestions, result.TotalQuestions),
		fmt.Sprintf("correct=%d", result.CorrectAnswers),
		fmt.Sprintf("incorrect=%d", result.IncorrectAnswers),
		fmt.Sprintf("time_used=%s", FormatClock(result.TimeUsed)),
		"",
		"",
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}

	return buf.Bytes(), nil
}
