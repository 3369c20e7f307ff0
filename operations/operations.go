// Package operations declares the GraphQL operations the client sends and
// typed accessors for their results.
package operations

import (
	"strings"

	"github.com/heartbeatlive/go-heartbeat/core"
)

const (
	FieldCheckEmailReserved       = "checkEmailReserved"
	FieldSendResetPasswordEmail   = "sendResetPasswordEmail"
	FieldUpdateProfileDisplayName = "updateProfileDisplayName"
)

// Application error codes carried in extensions.code.
const (
	CodeResetPasswordAlreadyRequested = "user.reset_password_request.already_made"
	CodeUserNotFoundByEmail           = "user.not_found.by_email"
)

const CheckEmailReservedDocument = `query CheckEmailReserved($email: String!) {
  checkEmailReserved(email: $email)
}`

const SendResetPasswordEmailDocument = `mutation SendResetPasswordEmail($email: String!) {
  sendResetPasswordEmail(email: $email)
}`

const UpdateProfileDisplayNameDocument = `mutation UpdateProfileDisplayName($displayName: String!) {
  updateProfileDisplayName(displayName: $displayName) {
    __typename
    id
    displayName
  }
}`

func CheckEmailReserved(email string) core.Operation {
	return core.NewQuery("CheckEmailReserved", CheckEmailReservedDocument, map[string]any{
		"email": strings.TrimSpace(email),
	})
}

func SendResetPasswordEmail(email string) core.Operation {
	return core.NewMutation("SendResetPasswordEmail", SendResetPasswordEmailDocument, map[string]any{
		"email": strings.TrimSpace(email),
	})
}

func UpdateProfileDisplayName(displayName string) core.Operation {
	return core.NewMutation("UpdateProfileDisplayName", UpdateProfileDisplayNameDocument, map[string]any{
		"displayName": strings.TrimSpace(displayName),
	})
}

// EmailReserved reads checkEmailReserved. ok is false when the field is
// absent, null or not a boolean.
func EmailReserved(resp *core.Response) (reserved bool, ok bool) {
	value, present := resp.Field(FieldCheckEmailReserved)
	if !present {
		return false, false
	}
	reserved, ok = value.(bool)
	return reserved, ok
}

// ResetEmailSent reports whether sendResetPasswordEmail returned true.
func ResetEmailSent(resp *core.Response) bool {
	value, present := resp.Field(FieldSendResetPasswordEmail)
	if !present {
		return false
	}
	sent, _ := value.(bool)
	return sent
}

// DisplayNameUpdated reports whether the response acknowledges the update,
// meaning no error is addressed at the mutation's path. The payload itself is
// not inspected; a null or differently shaped profile still counts.
func DisplayNameUpdated(resp *core.Response) bool {
	if resp == nil {
		return false
	}
	_, failed := resp.FindErrorWithPath(FieldUpdateProfileDisplayName)
	return !failed
}
