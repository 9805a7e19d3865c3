// Package message is the request/response vocabulary between the UI and the
// platform context. The variant set is closed: every Message is one of the
// types below and dispatch goes through Visitor.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeGetSuggestions Type = "GET_SUGGESTIONS"
	TypeFollowUser     Type = "FOLLOW_USER"
	TypeUnfollowUser   Type = "UNFOLLOW_USER"
	TypeRunAutomation  Type = "RUN_AUTOMATION"
	TypeUpdateAlarm    Type = "UPDATE_ALARM"
	TypeOpenPanel      Type = "OPEN_PANEL"
)

var ErrUnknownType = errors.New("unknown message type")

// Message is implemented only by the variants in this package.
type Message interface {
	Type() Type
	Accept(ctx context.Context, v Visitor) Response
	sealed()
}

// Visitor handles each variant. Adding a variant adds a method here, so every
// handler has to deal with it.
type Visitor interface {
	GetSuggestions(ctx context.Context, m GetSuggestions) Response
	FollowUser(ctx context.Context, m FollowUser) Response
	UnfollowUser(ctx context.Context, m UnfollowUser) Response
	RunAutomation(ctx context.Context, m RunAutomation) Response
	UpdateAlarm(ctx context.Context, m UpdateAlarm) Response
	OpenPanel(ctx context.Context, m OpenPanel) Response
}

// GetSuggestions asks for one page of suggestions; an empty cursor is the first page.
type GetSuggestions struct{ Cursor string }

type FollowUser struct{ UserID string }

type UnfollowUser struct{ UserID string }

type RunAutomation struct{}

// UpdateAlarm asks the scheduler to re-arm from the stored settings.
type UpdateAlarm struct{}

type OpenPanel struct{}

func (GetSuggestions) Type() Type { return TypeGetSuggestions }
func (FollowUser) Type() Type     { return TypeFollowUser }
func (UnfollowUser) Type() Type   { return TypeUnfollowUser }
func (RunAutomation) Type() Type  { return TypeRunAutomation }
func (UpdateAlarm) Type() Type    { return TypeUpdateAlarm }
func (OpenPanel) Type() Type      { return TypeOpenPanel }

func (m GetSuggestions) Accept(ctx context.Context, v Visitor) Response { return v.GetSuggestions(ctx, m) }
func (m FollowUser) Accept(ctx context.Context, v Visitor) Response     { return v.FollowUser(ctx, m) }
func (m UnfollowUser) Accept(ctx context.Context, v Visitor) Response   { return v.UnfollowUser(ctx, m) }
func (m RunAutomation) Accept(ctx context.Context, v Visitor) Response  { return v.RunAutomation(ctx, m) }
func (m UpdateAlarm) Accept(ctx context.Context, v Visitor) Response    { return v.UpdateAlarm(ctx, m) }
func (m OpenPanel) Accept(ctx context.Context, v Visitor) Response      { return v.OpenPanel(ctx, m) }

func (GetSuggestions) sealed() {}
func (FollowUser) sealed()     {}
func (UnfollowUser) sealed()   {}
func (RunAutomation) sealed()  {}
func (UpdateAlarm) sealed()    {}
func (OpenPanel) sealed()      {}

// envelope is the wire shape of every message.
type envelope struct {
	Type   Type   `json:"type"`
	UserID string `json:"userId,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// Decode parses a wire message. Unknown tags fail with ErrUnknownType.
func Decode(b []byte) (Message, error) {
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch e.Type {
	case TypeGetSuggestions:
		return GetSuggestions{Cursor: e.Cursor}, nil
	case TypeFollowUser:
		if e.UserID == "" {
			return nil, fmt.Errorf("decode message: %s requires userId", e.Type)
		}
		return FollowUser{UserID: e.UserID}, nil
	case TypeUnfollowUser:
		if e.UserID == "" {
			return nil, fmt.Errorf("decode message: %s requires userId", e.Type)
		}
		return UnfollowUser{UserID: e.UserID}, nil
	case TypeRunAutomation:
		return RunAutomation{}, nil
	case TypeUpdateAlarm:
		return UpdateAlarm{}, nil
	case TypeOpenPanel:
		return OpenPanel{}, nil
	}
	return nil, fmt.Errorf("decode message: %w %q", ErrUnknownType, e.Type)
}

func Encode(m Message) ([]byte, error) {
	e := envelope{Type: m.Type()}
	switch v := m.(type) {
	case GetSuggestions:
		e.Cursor = v.Cursor
	case FollowUser:
		e.UserID = v.UserID
	case UnfollowUser:
		e.UserID = v.UserID
	}
	return json.Marshal(e)
}

// Response is the reply to every message.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Response { return Response{Success: true, Data: data} }

func Fail(err error) Response { return Response{Error: err.Error()} }

func Failf(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}
