package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("object_id", validateObjectID)
	v.RegisterValidation("chat_type", validateChatType)
	v.RegisterValidation("chat_role", validateChatRole)
	return v
}

func validateObjectID(fl validator.FieldLevel) bool {
	_, err := primitive.ObjectIDFromHex(fl.Field().String())
	return err == nil
}

func validateChatType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "direct", "group", "channel", "announcement":
		return true
	}
	return false
}

func validateChatRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "owner", "admin", "moderator", "member", "guest":
		return true
	}
	return false
}

// ValidateStruct runs tag-based validation and flattens the result
// into a field→message map suitable for ValidationErrorResponse.
func ValidateStruct(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[strings.ToLower(fe.Field())] = validationMessage(fe)
	}
	return details
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "object_id":
		return "Must be a valid object id"
	case "chat_type":
		return "Must be one of: direct, group, channel, announcement"
	case "chat_role":
		return "Must be one of: owner, admin, moderator, member, guest"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	default:
		return fmt.Sprintf("Failed %s validation", fe.Tag())
	}
}
