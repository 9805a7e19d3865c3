package message

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder answers every variant with its own tag.
type recorder struct{ seen []Type }

func (r *recorder) note(t Type) Response {
	r.seen = append(r.seen, t)
	return OK(string(t))
}

func (r *recorder) GetSuggestions(_ context.Context, m GetSuggestions) Response { return r.note(m.Type()) }
func (r *recorder) FollowUser(_ context.Context, m FollowUser) Response         { return r.note(m.Type()) }
func (r *recorder) UnfollowUser(_ context.Context, m UnfollowUser) Response     { return r.note(m.Type()) }
func (r *recorder) RunAutomation(_ context.Context, m RunAutomation) Response   { return r.note(m.Type()) }
func (r *recorder) UpdateAlarm(_ context.Context, m UpdateAlarm) Response       { return r.note(m.Type()) }
func (r *recorder) OpenPanel(_ context.Context, m OpenPanel) Response           { return r.note(m.Type()) }

func TestDecodeDispatchesEveryTag(t *testing.T) {
	r := &recorder{}
	for _, raw := range []string{
		`{"type":"GET_SUGGESTIONS"}`,
		`{"type":"FOLLOW_USER","userId":"1"}`,
		`{"type":"UNFOLLOW_USER","userId":"1"}`,
		`{"type":"RUN_AUTOMATION"}`,
		`{"type":"UPDATE_ALARM"}`,
		`{"type":"OPEN_PANEL"}`,
	} {
		m, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		resp := m.Accept(context.Background(), r)
		assert.True(t, resp.Success)
		assert.Equal(t, string(m.Type()), resp.Data)
	}
	assert.Equal(t, []Type{
		TypeGetSuggestions, TypeFollowUser, TypeUnfollowUser,
		TypeRunAutomation, TypeUpdateAlarm, TypeOpenPanel,
	}, r.seen)
}

func TestDecodeFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"FOLLOW_USER","userId":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, FollowUser{UserID: "42"}, m)

	m, err = Decode([]byte(`{"type":"GET_SUGGESTIONS","cursor":"[1,2]"}`))
	require.NoError(t, err)
	assert.Equal(t, GetSuggestions{Cursor: "[1,2]"}, m)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"type":"LIKE_POST"}`))
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":"UNFOLLOW_USER"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	b, err := Encode(UnfollowUser{UserID: "9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UNFOLLOW_USER","userId":"9"}`, string(b))

	b, err = Encode(OpenPanel{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"OPEN_PANEL"}`, string(b))
}

func TestResponseShape(t *testing.T) {
	b, err := json.Marshal(Fail(errors.New("boom")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"boom"}`, string(b))

	b, err = json.Marshal(OK(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(b))
}
