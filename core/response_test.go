package core

import "testing"

func TestDecodeResponse_DataAndErrors(t *testing.T) {
	body := []byte(`{
		"data": {"updateProfileDisplayName": null, "checkEmailReserved": true},
		"errors": [
			{"message": "first", "path": ["somethingElse"], "extensions": {"code": "x.other"}},
			{"message": "boom", "path": ["updateProfileDisplayName", 0], "extensions": {"code": "user.not_found.by_email", "email": "a@b.co"}}
		]
	}`)
	resp, err := DecodeResponse(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if value, ok := resp.Field("checkEmailReserved"); !ok || value != true {
		t.Fatalf("expected checkEmailReserved=true, got %#v", value)
	}
	if _, ok := resp.Field("updateProfileDisplayName"); ok {
		t.Fatalf("expected null field to be reported missing")
	}

	found, ok := resp.FindErrorWithPath("updateProfileDisplayName")
	if !ok {
		t.Fatalf("expected error at updateProfileDisplayName")
	}
	if found.Message != "boom" || found.Code() != "user.not_found.by_email" {
		t.Fatalf("unexpected error: %#v", found)
	}
	if found.ExtensionString("email") != "a@b.co" {
		t.Fatalf("expected email extension")
	}
	if path := found.PathStrings(); len(path) != 2 || path[1] != "0" {
		t.Fatalf("expected numeric path segment rendering, got %#v", path)
	}
	if _, ok := resp.FindErrorWithPath("missing"); ok {
		t.Fatalf("expected no error for unknown path")
	}
	if _, ok := resp.FindErrorWithCode("x.other"); !ok {
		t.Fatalf("expected lookup by code")
	}
}

func TestDecodeResponse_RejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{"", "not json", `{"data": null}`, `[1,2]`} {
		_, err := DecodeResponse([]byte(body))
		if err == nil {
			t.Fatalf("expected parse error for %q", body)
		}
		if !IsParseError(err) {
			t.Fatalf("expected parse text code for %q, got %v", body, err)
		}
	}
}

func TestDecodeData_TypedShape(t *testing.T) {
	resp := &Response{Data: map[string]any{"checkEmailReserved": true}}
	type shape struct {
		CheckEmailReserved *bool `json:"checkEmailReserved"`
	}
	out, err := DecodeData[shape](resp)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out.CheckEmailReserved == nil || !*out.CheckEmailReserved {
		t.Fatalf("expected decoded field")
	}
	if _, err := DecodeData[shape](&Response{}); err == nil {
		t.Fatalf("expected error for empty data")
	}
}

func TestResponse_CloneIsDeep(t *testing.T) {
	resp := &Response{Data: map[string]any{"profile": map[string]any{"id": "1"}}}
	cloned := resp.Clone()
	cloned.Data["profile"].(map[string]any)["id"] = "2"
	if resp.Data["profile"].(map[string]any)["id"] != "1" {
		t.Fatalf("expected clone to be independent")
	}
}
