package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidQuestion marks a quiz question that does not have the fixed shape.
var ErrInvalidQuestion = errors.New("invalid quiz question")

var questionValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateQuestions checks every question of a quiz: non-empty text, at least two
// non-empty options and a correct index that points at one of them.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: quiz needs at least one question", ErrInvalidQuestion)
	}
	for i, q := range questions {
		q.Text = strings.TrimSpace(q.Text)
		if err := questionValidator.Struct(q); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				return fmt.Errorf("%w: question %d: %s failed %s", ErrInvalidQuestion, i+1, fieldErrs[0].Field(), fieldErrs[0].Tag())
			}
			return fmt.Errorf("%w: question %d: %v", ErrInvalidQuestion, i+1, err)
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("%w: question %d: blank option", ErrInvalidQuestion, i+1)
			}
		}
		if q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("%w: question %d: correct answer %d out of range", ErrInvalidQuestion, i+1, q.CorrectIndex)
		}
	}
	return nil
}
