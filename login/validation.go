package login

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const (
	MaxEmailLength    = 200
	MinPasswordLength = 8
	MinNameLength     = 3
)

const (
	MessageEmailInvalid      = "Please, specify your email address."
	MessageEmailTooLong      = "Your email address is too long."
	MessageEmailCheckFailed  = "An error happened while checking if the account exists. Please, try again later."
	MessageConnectivity      = "An error happened while making the request. Please, make sure that you have a stable internet connection."
	MessagePasswordTooShort  = "Your password must contain at least 8 characters."
	MessageWrongPassword     = "Wrong password."
	MessageAuthFailed        = "Authentication failed. Please, try again later."
	MessageNameTooShort      = "Your name must be longer than 2 characters."
	MessagePasswordsMismatch = "Passwords do not match."
)

var emailPattern = regexp.MustCompile(`^[\w\-.]+@([\w-]+\.)+[\w-]{2,4}$`)

// Fields are reported in this order; the first invalid one supplies the
// form message.
var fieldOrder = []Field{FieldEmail, FieldDisplayName, FieldPassword, FieldConfirmation}

func validateEmail(email string) error {
	return validation.Errors{
		string(FieldEmail): validation.Validate(email,
			validation.Required.Error(MessageEmailInvalid),
			validation.RuneLength(0, MaxEmailLength).Error(MessageEmailTooLong),
			validation.Match(emailPattern).Error(MessageEmailInvalid),
		),
	}.Filter()
}

func validatePassword(password string) error {
	return validation.Errors{
		string(FieldPassword): validation.Validate(password, passwordRules()...),
	}.Filter()
}

func validateRegistration(input RegistrationInput) error {
	return validation.Errors{
		string(FieldDisplayName): validation.Validate(input.DisplayName,
			validation.Required.Error(MessageNameTooShort),
			validation.RuneLength(MinNameLength, 0).Error(MessageNameTooShort),
		),
		string(FieldPassword): validation.Validate(input.Password, passwordRules()...),
		string(FieldConfirmation): validation.Validate(input.Confirmation,
			validation.Required.Error(MessagePasswordsMismatch),
			validation.In(input.Password).Error(MessagePasswordsMismatch),
		),
	}.Filter()
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(MessagePasswordTooShort),
		validation.RuneLength(MinPasswordLength, 0).Error(MessagePasswordTooShort),
	}
}

// invalidFields maps an ozzo validation result onto form flags and the
// message of the first failing field.
func invalidFields(err error) (map[Field]bool, string) {
	mapped := goerrors.FromOzzoValidation(err, "login: invalid input")
	if mapped == nil {
		return nil, ""
	}
	messages := map[Field]string{}
	for _, item := range mapped.ValidationErrors {
		messages[Field(item.Field)] = item.Message
	}
	invalid := make(map[Field]bool, len(messages))
	message := ""
	for _, field := range fieldOrder {
		text, ok := messages[field]
		if !ok {
			continue
		}
		invalid[field] = true
		if message == "" {
			message = text
		}
	}
	if message == "" {
		message = mapped.Message
	}
	return invalid, message
}
