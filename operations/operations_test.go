package operations

import (
	"testing"

	"github.com/heartbeatlive/go-heartbeat/core"
)

func TestOperationDescriptors(t *testing.T) {
	check := CheckEmailReserved("  a@b.com ")
	if check.IsMutation() {
		t.Fatalf("expected CheckEmailReserved to be a query")
	}
	if check.Variables["email"] != "a@b.com" {
		t.Fatalf("expected trimmed email variable, got %#v", check.Variables)
	}
	if err := check.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	reset := SendResetPasswordEmail("x@y.com")
	if !reset.IsMutation() || reset.Name != "SendResetPasswordEmail" {
		t.Fatalf("unexpected reset operation %#v", reset)
	}

	update := UpdateProfileDisplayName("Ada")
	if !update.IsMutation() || update.Variables["displayName"] != "Ada" {
		t.Fatalf("unexpected update operation %#v", update)
	}
	if update.CacheKey() == UpdateProfileDisplayName("Grace").CacheKey() {
		t.Fatalf("expected variables to change the cache key")
	}
}

func TestEmailReserved(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		reserved bool
		ok       bool
	}{
		{name: "reserved", body: `{"data":{"checkEmailReserved":true}}`, reserved: true, ok: true},
		{name: "free", body: `{"data":{"checkEmailReserved":false}}`, reserved: false, ok: true},
		{name: "null field", body: `{"data":{"checkEmailReserved":null}}`, ok: false},
		{name: "missing field", body: `{"data":{}}`, ok: false},
		{name: "wrong type", body: `{"data":{"checkEmailReserved":"yes"}}`, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := core.DecodeResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			reserved, ok := EmailReserved(resp)
			if reserved != tc.reserved || ok != tc.ok {
				t.Fatalf("expected (%v,%v), got (%v,%v)", tc.reserved, tc.ok, reserved, ok)
			}
		})
	}
}

func TestDisplayNameUpdated(t *testing.T) {
	acked, err := core.DecodeResponse([]byte(`{"data":{"updateProfileDisplayName":{"__typename":"Profile","id":"p1","displayName":"Ada"}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !DisplayNameUpdated(acked) {
		t.Fatalf("expected acknowledged update")
	}

	rejected, err := core.DecodeResponse([]byte(`{"data":null,"errors":[{"message":"profile not ready","path":["updateProfileDisplayName"]}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if DisplayNameUpdated(rejected) {
		t.Fatalf("expected path error to reject the update")
	}
	if DisplayNameUpdated(nil) {
		t.Fatalf("expected nil response to reject the update")
	}

	for _, body := range []string{
		`{"data":{"updateProfileDisplayName":null}}`,
		`{"data":{"updateProfileDisplayName":{"id":42,"displayName":"Ada"}}}`,
		`{"data":{"updateProfileDisplayName":true},"errors":[{"message":"slow","path":["profile"]}]}`,
	} {
		resp, err := core.DecodeResponse([]byte(body))
		if err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if !DisplayNameUpdated(resp) {
			t.Fatalf("expected %s to acknowledge the update", body)
		}
	}
}

func TestResetEmailSent(t *testing.T) {
	resp, err := core.DecodeResponse([]byte(`{"data":{"sendResetPasswordEmail":true}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ResetEmailSent(resp) {
		t.Fatalf("expected reset email to be reported as sent")
	}

	failed, err := core.DecodeResponse([]byte(`{"errors":[{"message":"already","path":["sendResetPasswordEmail"],"extensions":{"code":"user.reset_password_request.already_made"}}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ResetEmailSent(failed) {
		t.Fatalf("expected error response not to count as sent")
	}
	if item, ok := failed.FindErrorWithCode(CodeResetPasswordAlreadyRequested); !ok || item.Code() != CodeResetPasswordAlreadyRequested {
		t.Fatalf("expected already-requested code lookup")
	}
}
