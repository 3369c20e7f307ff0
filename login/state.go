package login

import "maps"

type Kind string

const (
	KindEmailPrompt            Kind = "email_prompt"
	KindPasswordPrompt         Kind = "password_prompt"
	KindRegistrationPrompt     Kind = "registration_prompt"
	KindPasswordRecoveryPrompt Kind = "password_recovery_prompt"
)

// State is one of EmailPrompt, PasswordPrompt, RegistrationPrompt or
// PasswordRecoveryPrompt. Other packages cannot add variants.
type State interface {
	Kind() Kind
	sealed()
}

type EmailPrompt struct{}

type PasswordPrompt struct {
	Email string
}

type RegistrationPrompt struct {
	Email string
}

type PasswordRecoveryPrompt struct {
	Email string
}

func (EmailPrompt) Kind() Kind            { return KindEmailPrompt }
func (PasswordPrompt) Kind() Kind         { return KindPasswordPrompt }
func (RegistrationPrompt) Kind() Kind     { return KindRegistrationPrompt }
func (PasswordRecoveryPrompt) Kind() Kind { return KindPasswordRecoveryPrompt }

func (EmailPrompt) sealed()            {}
func (PasswordPrompt) sealed()         {}
func (RegistrationPrompt) sealed()     {}
func (PasswordRecoveryPrompt) sealed() {}

// EmailOf returns the email carried by state, or "" for EmailPrompt.
func EmailOf(state State) string {
	switch typed := state.(type) {
	case PasswordPrompt:
		return typed.Email
	case RegistrationPrompt:
		return typed.Email
	case PasswordRecoveryPrompt:
		return typed.Email
	default:
		return ""
	}
}

type Field string

const (
	FieldEmail        Field = "email"
	FieldPassword     Field = "password"
	FieldDisplayName  Field = "display_name"
	FieldConfirmation Field = "confirmation"
)

type Style string

const (
	StyleInfo   Style = "info"
	StyleDanger Style = "danger"
)

// Form is the presentation state shared by every prompt.
type Form struct {
	Loading bool
	Invalid map[Field]bool
	Message string
}

func (f Form) IsInvalid(field Field) bool {
	return f.Invalid[field]
}

// Recovery describes the password reset request shown in
// PasswordRecoveryPrompt. Sends counts mutations fired since entering it.
type Recovery struct {
	Armed    bool
	Sending  bool
	Sends    int
	Message  string
	Style    Style
	CanRetry bool
}

type Snapshot struct {
	State         State
	Form          Form
	Recovery      Recovery
	Authenticated bool
}

func (s Snapshot) clone() Snapshot {
	cloned := s
	cloned.Form.Invalid = maps.Clone(s.Form.Invalid)
	return cloned
}
