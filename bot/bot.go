// Package bot is the Telegram command surface of the pipeline.
package bot

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"shorts-pipeline/async"
	"shorts-pipeline/config"
	"shorts-pipeline/tasks"
	"shorts-pipeline/types"
	"shorts-pipeline/ytauth"
)

// CallbackCreateVideo prefixes the task id in inline button data
const CallbackCreateVideo = "create_video_"

// Sender is the subset of *tgbotapi.BotAPI the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Coordinator creates and dispatches tasks
type Coordinator interface {
	RequestGeneration(ctx context.Context) (types.TaskRecord, error)
	ConfirmAndCreate(ctx context.Context, taskID string, onDone func(*types.PipelineResult)) (*tasks.Dispatch, error)
}

// AuthStatus reports YouTube authorization
type AuthStatus interface {
	Status(ctx context.Context) ytauth.Status
}

type Bot struct {
	api     Sender
	coord   Coordinator
	auth    AuthStatus
	cfg     config.BotConfig
	allowed map[int64]bool
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func New(api Sender, coord Coordinator, auth AuthStatus, cfg config.BotConfig, log zerolog.Logger) *Bot {
	b := &Bot{
		api:     api,
		coord:   coord,
		auth:    auth,
		cfg:     cfg,
		allowed: map[int64]bool{},
		log:     log.With().Str("component", "bot").Logger(),
	}
	for _, id := range cfg.AllowedChatIDs {
		b.allowed[id] = true
	}
	return b
}

// Connect logs in with token and starts long polling
func Connect(token string, cfg config.BotConfig, log zerolog.Logger) (*tgbotapi.BotAPI, tgbotapi.UpdatesChannel, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("component", "bot").Str("username", api.Self.UserName).Msg("✅ telegram bot authorized")
	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.PollTimeoutSec
	return api, api.GetUpdatesChan(u), nil
}

// Run handles updates until ctx is done or the channel closes. Each update is
// handled in its own goroutine so a slow AI call never stalls polling.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.log.Info().Msg("🤖 bot listening")
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			async.Go(b.log, "bot-update", func() {
				defer b.wg.Done()
				b.Handle(ctx, u)
			})
		}
	}
}

// Handle processes one update synchronously
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) permitted(chatID int64) bool {
	return len(b.allowed) == 0 || b.allowed[chatID]
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	if !b.permitted(chatID) {
		b.log.Warn().Int64("chat_id", chatID).Msg("message from chat not allowed")
		return
	}
	if !m.IsCommand() {
		b.reply(chatID, helpText(), nil)
		return
	}
	b.log.Info().Int64("chat_id", chatID).Str("command", m.Command()).Msg("command received")
	switch strings.ToLower(m.Command()) {
	case "generate_tip":
		b.generate(ctx, chatID)
	case "create_video":
		id := strings.TrimSpace(m.CommandArguments())
		if id == "" {
			b.reply(chatID, "Send the task id too, like `/create_video 1a2b3c4d`\\.", nil)
			return
		}
		b.create(ctx, chatID, id)
	case "youtube_auth":
		b.reply(chatID, authText(b.auth.Status(ctx), b.initiateURL()), nil)
	default:
		b.reply(chatID, helpText(), nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// answer first so the client stops its spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("could not answer callback")
	}
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	if !b.permitted(chatID) {
		b.log.Warn().Int64("chat_id", chatID).Msg("callback from chat not allowed")
		return
	}
	id, ok := strings.CutPrefix(q.Data, CallbackCreateVideo)
	if !ok {
		b.log.Warn().Str("data", q.Data).Msg("unknown callback data")
		return
	}
	b.create(ctx, chatID, id)
}

func (b *Bot) generate(ctx context.Context, chatID int64) {
	b.reply(chatID, "🧠 Generating a new tip\\.\\.\\.", nil)
	rec, err := b.coord.RequestGeneration(ctx)
	if err != nil {
		b.reply(chatID, errorText("Could not generate a tip", err), nil)
		return
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎬 Create video from this", CallbackCreateVideo+rec.TaskID),
	))
	b.reply(chatID, payloadText(rec), &kb)
}

func (b *Bot) create(ctx context.Context, chatID int64, taskID string) {
	d, err := b.coord.ConfirmAndCreate(ctx, taskID, func(res *types.PipelineResult) {
		b.reply(chatID, resultText(res), nil)
	})
	if err != nil {
		b.reply(chatID, errorText("Could not start video creation", err), nil)
		return
	}
	b.reply(chatID, dispatchText(d), nil)
}

func (b *Bot) initiateURL() string {
	return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/api/youtube/oauth/initiate"
}

// reply sends MarkdownV2 and falls back to plain text when Telegram rejects it
func (b *Bot) reply(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("formatted send rejected, retrying as plain text")
	msg.Text = plainText(text)
	msg.ParseMode = ""
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("❌ send failed")
	}
}
