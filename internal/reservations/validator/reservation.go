package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type ReservationValidator struct {
	validate        *validator.Validate
	logger          *logger.Logger
	slotDurationMin int
}

func NewReservationValidator(log *logger.Logger, slotDurationMin int) *ReservationValidator {
	v := validator.New()

	if err := v.RegisterValidation("printable", validatePrintable); err != nil {
		log.Fatal("Failed to register 'printable' validator",
			"error", err,
		)
	}

	log.Debug("Reservation validator initialized successfully")

	return &ReservationValidator{
		validate:        v,
		logger:          log,
		slotDurationMin: slotDurationMin,
	}
}

func validatePrintable(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if strings.TrimSpace(value) == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func (v *ReservationValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *ReservationValidator) Validate(req *model.ReservationRequest) error {
	return v.check(req)
}

func (v *ReservationValidator) ValidateUpdate(update *model.ReservationUpdate) error {
	if err := v.check(update); err != nil {
		return err
	}
	if (update.ID == "") == (update.OldStartTime == nil) {
		return ValidationErrors{
			ValidationError{
				Field:   "ID",
				Message: "exactly one of id and old_start_time is required",
			},
		}
	}
	return nil
}

func (v *ReservationValidator) ValidateCancel(req *model.CancelRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if (req.ID == "") == (req.StartTime == nil) {
		return ValidationErrors{
			ValidationError{
				Field:   "ID",
				Message: "exactly one of id and start_time is required",
			},
		}
	}
	return nil
}

func (v *ReservationValidator) ValidateQuery(q *model.AvailabilityQuery) error {
	if err := v.check(q); err != nil {
		return err
	}
	if q.MaxStartTime != nil && q.MaxStartTime.Before(q.MinStartTime) {
		return ValidationErrors{
			ValidationError{
				Field:   "MaxStartTime",
				Message: "max_start_time cannot be before min_start_time",
			},
		}
	}
	return nil
}

// ValidateService checks a catalog entry. Durations must be a whole number of slots.
func (v *ReservationValidator) ValidateService(s *model.Service) error {
	if err := v.check(s); err != nil {
		return err
	}
	if v.slotDurationMin > 0 && s.DurationMin%v.slotDurationMin != 0 {
		return ValidationErrors{
			ValidationError{
				Field:   "DurationMin",
				Message: fmt.Sprintf("duration_min must be a multiple of %d", v.slotDurationMin),
			},
		}
	}
	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "printable":
			message = fmt.Sprintf("%s must be printable text", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
