// Package convert maps control-surface requests and responses to and from protobuf Structs.
package convert

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/service"
)

// --- helpers ---

func str(f map[string]*structpb.Value, key string) string {
	if v, ok := f[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func credentialsMap(c model.Credentials) map[string]any {
	m := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("login", c.Login)
	put("password", c.Password)
	put("sharedSecret", c.SharedSecret)
	put("identitySecret", c.IdentitySecret)
	put("apiKey", c.APIKey)
	return m
}

// --- Request (client -> server) ---

// FromProtoRequest converts a Struct into a dispatcher request.
func FromProtoRequest(in *structpb.Struct) (service.Request, error) {
	if in == nil {
		return service.Request{}, errors.New("nil request")
	}
	f := in.GetFields()
	req := service.Request{
		Action:     str(f, "action"),
		AccountID:  str(f, "accountId"),
		Name:       str(f, "name"),
		ExternalID: str(f, "externalId"),
	}
	if v, ok := f["retryAttempt"]; ok {
		n := v.GetNumberValue()
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum || n != math.Trunc(n) {
			return service.Request{}, fmt.Errorf("retryAttempt: want integer, got %v", v.AsInterface())
		}
		req.RetryAttempt = int(n)
	}
	if v, ok := f["credentials"]; ok {
		c := v.GetStructValue()
		if c == nil {
			return service.Request{}, errors.New("credentials: want object")
		}
		cf := c.GetFields()
		req.Credentials = model.Credentials{
			Login:          str(cf, "login"),
			Password:       str(cf, "password"),
			SharedSecret:   str(cf, "sharedSecret"),
			IdentitySecret: str(cf, "identitySecret"),
			APIKey:         str(cf, "apiKey"),
		}
	}
	return req, nil
}

// ToProtoRequest converts a dispatcher request into a Struct. Empty fields are omitted.
func ToProtoRequest(r service.Request) (*structpb.Struct, error) {
	m := map[string]any{"action": r.Action}
	if r.AccountID != "" {
		m["accountId"] = r.AccountID
	}
	if r.Name != "" {
		m["name"] = r.Name
	}
	if r.ExternalID != "" {
		m["externalId"] = r.ExternalID
	}
	if r.RetryAttempt != 0 {
		m["retryAttempt"] = r.RetryAttempt
	}
	if !r.Credentials.Empty() {
		m["credentials"] = credentialsMap(r.Credentials)
	}
	return structpb.NewStruct(m)
}

// --- Response (server -> client) ---

// ToProtoResponse converts a dispatcher response into a Struct.
func ToProtoResponse(r service.Response) (*structpb.Struct, error) {
	m := map[string]any{"success": r.Success}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if len(r.Details) > 0 {
		m["details"] = r.Details
	}
	return structpb.NewStruct(m)
}

// FromProtoResponse converts a Struct into a dispatcher response. Numbers in Details come back
// as float64.
func FromProtoResponse(in *structpb.Struct) service.Response {
	if in == nil {
		return service.Response{}
	}
	f := in.GetFields()
	resp := service.Response{
		Success: f["success"].GetBoolValue(),
		Message: str(f, "message"),
		Error:   str(f, "error"),
	}
	if d := f["details"].GetStructValue(); d != nil {
		resp.Details = d.AsMap()
	}
	return resp
}
