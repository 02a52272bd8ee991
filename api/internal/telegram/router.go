package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medmap/api/internal/logger"
	"medmap/api/internal/ocr"
	"medmap/api/internal/pipeline"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type Router struct {
	Bot      Bot
	Pipeline Processor

	state *chatState
}

func NewRouter(bot Bot, p Processor) *Router {
	return &Router{Bot: bot, Pipeline: p, state: newChatState()}
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	switch {
	case msg.IsCommand():
		r.handleCommand(msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, *msg)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		r.acceptDocument(ctx, *msg)
	case strings.TrimSpace(msg.Text) != "":
		r.run(ctx, msg.Chat.ID, pipeline.Request{RawText: msg.Text})
	}
}

func (r *Router) handleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "OK")
	case "debug":
		on := r.state.toggleDebug(cid)
		r.send(cid, fmt.Sprintf("Per-pass OCR output: %s", onOff(on)))
	case "passes":
		arg := strings.TrimSpace(msg.CommandArguments())
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > 5 {
			r.send(cid, "Usage: /passes 1..5")
			return
		}
		r.state.setPasses(cid, n)
		r.send(cid, fmt.Sprintf("OCR passes: %d", n))
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	switch cb.Data {
	case cbShowText:
		res, ok := r.state.last(cid)
		if !ok {
			r.send(cid, "Nothing processed yet.")
			return
		}
		r.send(cid, formatOCRText(res))
	case cbShowPasses:
		res, ok := r.state.last(cid)
		if !ok || len(res.OCR.PassResults) == 0 {
			r.send(cid, "No per-pass output. Enable it with /debug and resend the photo.")
			return
		}
		r.send(cid, formatPasses(res))
	default:
		logger.WithContext(ctx).Debug("unknown callback", "data", cb.Data)
	}
}

// run sends one request through the pipeline and replies with the result.
func (r *Router) run(ctx context.Context, chatID int64, req pipeline.Request) {
	opts := r.state.options(chatID)
	req.Options = ocr.Options{Passes: opts.passes, Debug: opts.debug}

	res, err := r.Pipeline.Process(ctx, req)
	if err != nil {
		logger.WithContext(ctx).Error("telegram: process", "chat_id", chatID, "err", err)
		r.SendError(chatID, err)
		return
	}
	r.state.remember(chatID, res)

	m := tgbotapi.NewMessage(chatID, truncate(formatResult(res)))
	m.ReplyMarkup = resultKeyboard(opts.debug)
	_, _ = r.Bot.Send(m)
}

func (r *Router) send(chatID int64, text string) {
	_, _ = r.Bot.Send(tgbotapi.NewMessage(chatID, truncate(text)))
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("Could not process the prescription: %v", err))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

const helpText = `Send a photo of a prescription (or paste its text) and I will list the medicines with their catalog matches.
Several photos sent together are read as one prescription.

/passes N  number of OCR passes (1..5)
/debug     toggle per-pass OCR output
/health    liveness check`
