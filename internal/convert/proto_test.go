package convert

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/service"
)

func TestFromProtoRequest(t *testing.T) {
	t.Parallel()

	in, err := structpb.NewStruct(map[string]any{
		"action":       "create_bot",
		"name":         "main",
		"externalId":   "76561198000000001",
		"retryAttempt": 2,
		"credentials": map[string]any{
			"login":        "bot",
			"sharedSecret": "s3",
		},
		"ignored": true,
	})
	require.NoError(t, err)

	req, err := FromProtoRequest(in)
	require.NoError(t, err)
	require.Equal(t, service.Request{
		Action:       "create_bot",
		Name:         "main",
		ExternalID:   "76561198000000001",
		RetryAttempt: 2,
		Credentials:  model.Credentials{Login: "bot", SharedSecret: "s3"},
	}, req)
}

func TestFromProtoRequest_Invalid(t *testing.T) {
	t.Parallel()

	_, err := FromProtoRequest(nil)
	require.Error(t, err)

	in, _ := structpb.NewStruct(map[string]any{"action": "sync_inventory", "retryAttempt": 1.5})
	_, err = FromProtoRequest(in)
	require.Error(t, err)

	in, _ = structpb.NewStruct(map[string]any{"action": "sync_inventory", "retryAttempt": "1"})
	_, err = FromProtoRequest(in)
	require.Error(t, err)

	in, _ = structpb.NewStruct(map[string]any{"action": "create_bot", "credentials": "bot:pw"})
	_, err = FromProtoRequest(in)
	require.Error(t, err)
}

func TestToProtoRequest_OmitsEmpty(t *testing.T) {
	t.Parallel()

	s, err := ToProtoRequest(service.Request{Action: "list_bots"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"action": "list_bots"}, s.AsMap())

	s, err = ToProtoRequest(service.Request{
		Action:      "test_login",
		ExternalID:  "76561198000000001",
		Credentials: model.Credentials{APIKey: "k"},
	})
	require.NoError(t, err)
	back, err := FromProtoRequest(s)
	require.NoError(t, err)
	require.Equal(t, "k", back.Credentials.APIKey)
	require.NotContains(t, s.AsMap()["credentials"], "login")
}

func TestProtoResponse(t *testing.T) {
	t.Parallel()

	s, err := ToProtoResponse(service.Response{
		Success: true,
		Message: "sync completed",
		Details: map[string]any{
			"itemCount":  3,
			"durationMs": int64(1500),
			"unmatched":  []any{"Camo MP5"},
			"healthy":    true,
		},
	})
	require.NoError(t, err)

	got := FromProtoResponse(s)
	require.True(t, got.Success)
	require.Equal(t, "sync completed", got.Message)
	require.Equal(t, float64(3), got.Details["itemCount"])
	require.Equal(t, float64(1500), got.Details["durationMs"])
	require.Equal(t, []any{"Camo MP5"}, got.Details["unmatched"])

	s, err = ToProtoResponse(service.Response{Error: "boom", Details: map[string]any{"category": "UNKNOWN_ERROR"}})
	require.NoError(t, err)
	got = FromProtoResponse(s)
	require.False(t, got.Success)
	require.Equal(t, "boom", got.Error)
	require.Equal(t, "UNKNOWN_ERROR", got.Details["category"])

	require.Equal(t, service.Response{}, FromProtoResponse(nil))
}

func TestToProtoResponse_UnsupportedDetail(t *testing.T) {
	t.Parallel()

	_, err := ToProtoResponse(service.Response{Details: map[string]any{"bad": []string{"x"}}})
	require.Error(t, err)
}
