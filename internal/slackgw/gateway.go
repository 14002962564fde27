// Package slackgw is the Slack edge: it speaks socket mode, renders the
// core's content variants as Block Kit, and maps clicks and messages back
// into platform-neutral events.
package slackgw

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"threadpilot/internal/chat"
)

type Config struct {
	BotToken string
	AppToken string
	// AllowedUsers restricts who may talk to the bot and click its buttons.
	// Empty means every workspace member.
	AllowedUsers []string
}

func (c Config) Validate() error {
	if !strings.HasPrefix(strings.TrimSpace(c.BotToken), "xoxb-") {
		return errors.New("slack bot_token must start with xoxb-")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.AppToken), "xapp-") {
		return errors.New("slack app_token must start with xapp-")
	}
	return nil
}

type Gateway struct {
	api       *slack.Client
	sock      *socketmode.Client
	logger    *zap.Logger
	botUserID string
	allowed   map[string]bool
}

var (
	_ chat.Sink       = (*Gateway)(nil)
	_ chat.Indicators = (*Gateway)(nil)
)

func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	api := slack.New(
		strings.TrimSpace(cfg.BotToken),
		slack.OptionAppLevelToken(strings.TrimSpace(cfg.AppToken)),
	)
	auth, err := api.AuthTest()
	if err != nil {
		return nil, err
	}
	return &Gateway{
		api:       api,
		sock:      socketmode.New(api),
		logger:    logger,
		botUserID: auth.UserID,
		allowed:   allowlist(cfg.AllowedUsers),
	}, nil
}

func allowlist(users []string) map[string]bool {
	m := make(map[string]bool, len(users))
	for _, u := range users {
		if u = strings.TrimSpace(u); u != "" {
			m[u] = true
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// allowedUser reports whether the member may talk to the bot. An empty
// allowlist admits everyone.
func (g *Gateway) allowedUser(id string) bool {
	return g.allowed == nil || g.allowed[id]
}

// BotUserID is the bot's own member id, used to strip mentions and to drop
// self-authored events.
func (g *Gateway) BotUserID() string {
	if g == nil {
		return ""
	}
	return g.botUserID
}

// Run pumps socket-mode events until ctx ends. Inbound user messages go to
// onMessage, button clicks to onAction; both run on the event loop goroutine,
// so handlers must hand off long work themselves.
func (g *Gateway) Run(ctx context.Context, onMessage func(chat.Inbound), onAction func(chat.Action)) error {
	if g == nil || g.sock == nil {
		return errors.New("slack gateway is nil")
	}
	if onMessage == nil {
		return errors.New("onMessage callback is required")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-g.sock.Events:
				if !ok {
					return
				}
				g.dispatch(evt, onMessage, onAction)
			}
		}
	}()

	return g.sock.RunContext(ctx)
}

func (g *Gateway) dispatch(evt socketmode.Event, onMessage func(chat.Inbound), onAction func(chat.Action)) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		g.logger.Info("slack socket connected")
	case socketmode.EventTypeConnectionError:
		g.logger.Warn("slack socket connection error")
	case socketmode.EventTypeEventsAPI:
		payload, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			g.sock.Ack(*evt.Request)
		}
		g.handleEventsAPI(payload, onMessage)
	case socketmode.EventTypeInteractive:
		payload, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			g.sock.Ack(*evt.Request)
		}
		g.handleInteraction(payload, onAction)
	}
}

func (g *Gateway) handleEventsAPI(payload slackevents.EventsAPIEvent, onMessage func(chat.Inbound)) {
	if payload.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := payload.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		g.deliver(onMessage, chat.Inbound{
			UserID:   ev.User,
			Channel:  ev.Channel,
			ThreadTS: ev.ThreadTimeStamp,
			TS:       ev.TimeStamp,
			Text:     g.stripMention(ev.Text),
		})
	case *slackevents.MessageEvent:
		// Only direct messages; channel traffic comes in via app_mention.
		if ev.ChannelType != "im" {
			return
		}
		if ev.BotID != "" || ev.User == "" || ev.User == g.botUserID {
			return
		}
		if ev.SubType != "" {
			return
		}
		g.deliver(onMessage, chat.Inbound{
			UserID:   ev.User,
			Channel:  ev.Channel,
			ThreadTS: ev.ThreadTimeStamp,
			TS:       ev.TimeStamp,
			Text:     ev.Text,
		})
	}
}

func (g *Gateway) deliver(onMessage func(chat.Inbound), msg chat.Inbound) {
	if !g.allowedUser(msg.UserID) {
		g.logger.Debug("dropping message from unlisted user", zap.String("user", msg.UserID))
		return
	}
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return
	}
	onMessage(msg)
}

func (g *Gateway) stripMention(text string) string {
	if g.botUserID == "" {
		return text
	}
	return strings.ReplaceAll(text, "<@"+g.botUserID+">", "")
}

func (g *Gateway) handleInteraction(payload slack.InteractionCallback, onAction func(chat.Action)) {
	if onAction == nil || payload.Type != slack.InteractionTypeBlockActions {
		return
	}
	if !g.allowedUser(payload.User.ID) {
		g.logger.Debug("dropping click from unlisted user", zap.String("user", payload.User.ID))
		return
	}
	for _, blockAction := range payload.ActionCallback.BlockActions {
		if blockAction == nil {
			continue
		}
		var kind chat.ActionKind
		switch blockAction.ActionID {
		case actionApprove:
			kind = chat.ActionApprove
		case actionDeny:
			kind = chat.ActionDeny
		case actionToggleOutput:
			kind = chat.ActionToggleOutput
		default:
			g.logger.Debug("unknown block action", zap.String("action_id", blockAction.ActionID))
			continue
		}
		onAction(chat.Action{
			UserID:  payload.User.ID,
			Kind:    kind,
			Token:   blockAction.Value,
			Channel: payload.Channel.ID,
			Message: chat.MessageRef{
				Channel:   payload.Channel.ID,
				Timestamp: payload.Message.Timestamp,
			},
		})
	}
}

func (g *Gateway) PostMessage(ctx context.Context, channel, thread string, content chat.Content) (chat.MessageRef, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionBlocks(renderBlocks(content)...),
		slack.MsgOptionText(content.Fallback(), false),
	}
	if strings.TrimSpace(thread) != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	ch, ts, err := g.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return chat.MessageRef{}, err
	}
	return chat.MessageRef{Channel: ch, Timestamp: ts}, nil
}

func (g *Gateway) UpdateMessage(ctx context.Context, ref chat.MessageRef, content chat.Content) error {
	_, _, _, err := g.api.UpdateMessageContext(ctx, ref.Channel, ref.Timestamp,
		slack.MsgOptionBlocks(renderBlocks(content)...),
		slack.MsgOptionText(content.Fallback(), false),
	)
	return err
}

func (g *Gateway) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	_, _, err := g.api.DeleteMessageContext(ctx, ref.Channel, ref.Timestamp)
	if err != nil && isSlackError(err, "message_not_found") {
		return nil
	}
	return err
}

func (g *Gateway) AddIndicator(ctx context.Context, ref chat.MessageRef, name string) error {
	err := g.api.AddReactionContext(ctx, name, slack.NewRefToMessage(ref.Channel, ref.Timestamp))
	if err != nil && isSlackError(err, "already_reacted") {
		return nil
	}
	return err
}

func (g *Gateway) RemoveIndicator(ctx context.Context, ref chat.MessageRef, name string) error {
	err := g.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(ref.Channel, ref.Timestamp))
	if err != nil && isSlackError(err, "no_reaction") {
		return nil
	}
	return err
}

func isSlackError(err error, code string) bool {
	if err == nil {
		return false
	}
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.Err == code
	}
	return err.Error() == code
}
