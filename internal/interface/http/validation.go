package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	notBlankTag = "notblank"
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Field errors are reported with JSON names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})
	_ = validate.RegisterTranslation(notBlankTag, translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		})
}

// requestError is a 400 with optional per-field messages.
type requestError struct {
	message string
	fields  map[string]string
}

func (e *requestError) Error() string { return e.message }

// decodeAndValidate reads a JSON body into dest and validates it. An empty
// body decodes to the zero value when allowEmpty is set.
func decodeAndValidate(r *http.Request, dest any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dest); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return &requestError{message: describeDecodeError(err)}
		}
	}

	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &requestError{message: err.Error()}
		}
		fields := make(map[string]string, len(verrs))
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg := fe.Translate(translator)
			fields[fieldPath(fe)] = msg
			msgs = append(msgs, msg)
		}
		return &requestError{message: strings.Join(msgs, "; "), fields: fields}
	}
	return nil
}

// fieldPath strips the struct name from the namespace: "req.answers[1]"
// becomes "answers[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeDecodeError(err error) string {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &maxErr):
		return fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return strings.TrimPrefix(err.Error(), "json: ")
	default:
		return "invalid request body"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

type registerStudentRequest struct {
	AccountID   string `json:"account_id" validate:"required,notblank,max=128"`
	DisplayName string `json:"display_name" validate:"required,notblank,max=100"`
}

type completeLessonRequest struct {
	PointsReward int `json:"points_reward" validate:"min=0"`
}

type submitQuizAttemptRequest struct {
	// Answers holds one entry per question; null marks a skipped question.
	Answers          []*int `json:"answers" validate:"max=500,dive,omitempty,min=0"`
	TimeTakenSeconds int    `json:"time_taken_seconds" validate:"min=0"`
}

type awardBadgesRequest struct {
	BadgeIDs []string `json:"badge_ids" validate:"required,min=1,max=50,dive,required"`
}

type joinChallengeRequest struct {
	StudentID string `json:"student_id" validate:"required,notblank"`
}

type completeChallengeRequest struct {
	PointsReward int `json:"points_reward" validate:"min=0"`
}

type quizQuestionRequest struct {
	ID           string   `json:"id" validate:"max=64"`
	Prompt       string   `json:"prompt" validate:"max=2000"`
	Options      []string `json:"options" validate:"dive,required"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
}

type upsertQuizRequest struct {
	Title            string                `json:"title" validate:"max=200"`
	PassingScore     int                   `json:"passing_score"`
	TimeLimitMinutes int                   `json:"time_limit_minutes"`
	RewardPoints     int                   `json:"reward_points"`
	Questions        []quizQuestionRequest `json:"questions" validate:"dive"`
}
