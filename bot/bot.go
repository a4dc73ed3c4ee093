// Package bot wraps the telego update loop of the admin bot. It rate
// limits and authenticates incoming updates, recovers handler panics,
// and delegates operator messages to the composition dialogue.
package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"broadcastbot/internal/auth"
	"broadcastbot/internal/compose"
	"broadcastbot/internal/locales"
	"broadcastbot/pkg/telegoapi"
)

// Bot runs the admin bot update loop. Every update is rate limited,
// checked against the operator allowlist and handed to the composition
// manager.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	debug       bool
	checker     *auth.OperatorChecker
	composer    *compose.Manager
	ratelimiter ratelimit.Limiter
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Debug       bool
	Checker     *auth.OperatorChecker
	Composer    *compose.Manager
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Checker == nil {
		return nil, fmt.Errorf("operator checker cannot be nil")
	}
	if deps.Composer == nil {
		return nil, fmt.Errorf("composition manager cannot be nil")
	}

	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		debug:       deps.Debug,
		checker:     deps.Checker,
		composer:    deps.Composer,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// processUpdate routes one incoming update.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	// Apply global rate limiting
	b.ratelimiter.Take()

	// Handle potential panics in handlers
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if update.Message == nil {
		if b.debug {
			log.Printf("Ignoring unhandled update type: %+v", update)
		}
		return
	}

	message := *update.Message
	if message.From == nil {
		log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
		return
	}

	if !b.checker.IsOperator(message.From.ID) {
		log.Printf("[Auth User:%d] Rejected non-operator update", message.From.ID)
		localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
		refusal := locales.GetMessage(localizer, "MsgUnauthorized", nil, nil)
		if _, err := b.bot.SendMessage(processingCtx, tu.Message(tu.ID(message.Chat.ID), refusal)); err != nil {
			log.Printf("[Auth User:%d] Failed to send refusal: %v", message.From.ID, err)
		}
		return
	}

	if err := b.composer.HandleMessage(processingCtx, message); err != nil {
		logPrefix := fmt.Sprintf("[Dialogue User:%d Msg:%d]", message.From.ID, message.MessageID)
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
	}
}

// Start begins the bot's update processing loop. It blocks until the
// context is cancelled or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	if err := b.setupCommands(ctx); err != nil {
		log.Printf("Failed to set bot commands: %v", err)
		sentry.CaptureException(err)
	}
	log.Println("Listening for updates...")

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

// Stop gracefully stops the bot. The actual stop is triggered by
// cancelling the context passed to Start.
func (b *Bot) Stop() {
	log.Println("Bot Stop method called. Actual stop triggered by context cancellation.")
}

func (b *Bot) setupCommands(ctx context.Context) error {
	localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())

	cmds := []telego.BotCommand{
		{
			Command:     "start",
			Description: locales.GetMessage(localizer, "CmdStartDescription", nil, nil),
		},
		{
			Command:     "cancel",
			Description: locales.GetMessage(localizer, "CmdCancelDescription", nil, nil),
		},
		{
			Command:     "done",
			Description: locales.GetMessage(localizer, "CmdDoneDescription", nil, nil),
		},
	}

	if err := b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: cmds}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}

	log.Println("Bot commands successfully set.")
	return nil
}
