package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func FormatValidationError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			message := getFieldErrorMessage(fieldError)
			messages = append(messages, message)
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}

func getFieldErrorMessage(fe validator.FieldError) string {
	field := getFieldName(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func getFieldName(field string) string {
	fieldNames := map[string]string{
		"PrimaryID":   "Primary user ID",
		"SecondaryID": "Secondary user ID",
		"IgnoreIDs":   "Ignore list",
	}

	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}
