package relay

import (
	"context"
	"errors"

	"charognard/internal/automation"
	"charognard/internal/logging"
	"charognard/internal/message"
	"charognard/internal/model"
)

type Suggester interface {
	FetchSuggestions(ctx context.Context, cursor string) (model.SuggestionsPage, error)
}

type Actions interface {
	FollowID(ctx context.Context, acct, userID string) error
	Unfollow(ctx context.Context, acct, userID string) error
}

type Automation interface {
	Run(ctx context.Context, accountID string) (automation.Summary, error)
}

// Content executes messages inside the authenticated platform session.
type Content struct {
	account     func() string
	suggestions Suggester
	actions     Actions
	automation  Automation
	// OnOpenPanel is called for OPEN_PANEL; nil only acknowledges.
	OnOpenPanel func(ctx context.Context)
}

func NewContent(account func() string, s Suggester, a Actions, auto Automation) *Content {
	return &Content{account: account, suggestions: s, actions: a, automation: auto}
}

// Handle implements Target.
func (c *Content) Handle(ctx context.Context, m message.Message) (message.Response, error) {
	return m.Accept(ctx, c), nil
}

func (c *Content) GetSuggestions(ctx context.Context, m message.GetSuggestions) message.Response {
	page, err := c.suggestions.FetchSuggestions(ctx, m.Cursor)
	if err != nil {
		return message.Fail(err)
	}
	return message.OK(page)
}

func (c *Content) FollowUser(ctx context.Context, m message.FollowUser) message.Response {
	if err := c.actions.FollowID(ctx, c.account(), m.UserID); err != nil {
		return message.Fail(err)
	}
	return message.OK(nil)
}

func (c *Content) UnfollowUser(ctx context.Context, m message.UnfollowUser) message.Response {
	if err := c.actions.Unfollow(ctx, c.account(), m.UserID); err != nil {
		return message.Fail(err)
	}
	return message.OK(nil)
}

func (c *Content) RunAutomation(ctx context.Context, _ message.RunAutomation) message.Response {
	sum, err := c.automation.Run(ctx, c.account())
	if err != nil {
		return message.Response{Data: sum, Error: err.Error()}
	}
	return message.OK(sum)
}

// UpdateAlarm never reaches the platform context; the relay answers it.
func (c *Content) UpdateAlarm(context.Context, message.UpdateAlarm) message.Response {
	return message.Fail(errors.New("UPDATE_ALARM is handled by the relay"))
}

func (c *Content) OpenPanel(ctx context.Context, _ message.OpenPanel) message.Response {
	logging.Debug("open_panel", nil)
	if c.OnOpenPanel != nil {
		c.OnOpenPanel(ctx)
	}
	return message.OK(nil)
}
