package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
)

type targetBody struct {
	UserID string  `json:"user_id" validate:"required,userid"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=16"`
}

type createBody struct {
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private"`
	Alias      string `json:"alias,omitempty" validate:"omitempty,max=64"`
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"@bob:example.org","reason":"spam"}`))
	var body targetBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "@bob:example.org", body.UserID)
	require.NotNil(t, body.Reason)
	assert.Equal(t, "spam", *body.Reason)
}

func TestDecodeJSONBodyRejectsBadUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"bob"}`))
	var body targetBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a user id like @name:server", details["user_id"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"@bob:example.org","power":100}`))
	var body targetBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEmptyBodyStillValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	var create createBody
	require.NoError(t, DecodeJSONBody(req, &create))

	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	var target targetBody
	err := DecodeJSONBody(req, &target)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyOneOf(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"visibility":"secret"}`))
	var body createBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "must be one of [public private]", details["visibility"])
}

func TestIsRoomRef(t *testing.T) {
	assert.True(t, IsRoomRef("!abc:example.org"))
	assert.True(t, IsRoomRef("#lobby:example.org"))
	assert.False(t, IsRoomRef("lobby"))
	assert.False(t, IsRoomRef("#lobby"))
	assert.False(t, IsRoomRef(""))
}

func TestVar(t *testing.T) {
	require.NoError(t, Var("room_id", "!abc:example.org", "roomid"))
	err := Var("room_id", "abc", "roomid")
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "must be a room id like !opaque:server", details["room_id"])
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&membership=JOIN", nil)
	limit, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	state, err := ParseQueryEnum(req, "membership", "join", "invite", "leave", "ban")
	require.NoError(t, err)
	assert.Equal(t, "join", state)

	bad := httptest.NewRequest(http.MethodGet, "/?limit=500&membership=knock", nil)
	_, err = ParseQueryInt(bad, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryEnum(bad, "membership", "join")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	limit, err = ParseQueryInt(empty, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
}
