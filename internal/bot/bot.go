package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/referral"

	"github.com/cenkalti/backoff/v4"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"
)

const (
	defaultSendAttempts = 3
	defaultRetryDelay   = 2 * time.Second
)

const welcomeCaption = "🥳Grab Your Lucky!\n" +
	"🙌Scratch tickets and spin the wheel to win mystery prizes.\n\n" +
	"🍻 Click “Play”, unleash Your Luck with the Ultimate Web3 Scratch-Off Game!\n\n" +
	"🐰 Play \"Scratch and Win\" to get your lucky cards and share with your friends to earn more. 🎉\n\n" +
	"🐰 Try \"Lucky Spin\" to unlock the ultimate prize!"

const supportText = "Dear community, please feel free to contact us anytime while participating, and earning with Rabbit Luck.\n\n" +
	"🏅Lucky Points\n" +
	"Showcase your contributions and impact. Flagship TON Projects will see you!\n\n" +
	"🚀Incentive Hub\n" +
	"Explore and engage in the most potential projects and earn rewards!\n\n" +
	"📖QA Doc\n" +
	"If you have any other questions, please first look for answers in the QA section.\n" +
	"Link: https://medium.com/@RabbitLuck\n\n" +
	"📪Report\n" +
	"For any inquiries or feedback of Rabbit Luck products, please don’t hesitate to reach out to us via Telegram: %s."

type Registrar interface {
	Register(ctx context.Context, reg referral.Registration) (referral.Result, error)
}

type Options struct {
	PlayURL        string
	PhotoURL       string
	CampaignsURL   string
	SupportContact string
}

type Bot struct {
	Instance  *telego.Bot
	Referrals Registrar
	Options   Options
	Log       logrus.FieldLogger

	SendAttempts int
	RetryDelay   time.Duration
}

func NewBot(token string, referrals Registrar, opts Options, log logrus.FieldLogger, botOpts ...telego.BotOption) (*Bot, error) {
	tgBot, err := telego.NewBot(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Bot{
		Instance:     tgBot,
		Referrals:    referrals,
		Options:      opts,
		Log:          log.WithField("component", "bot"),
		SendAttempts: defaultSendAttempts,
		RetryDelay:   defaultRetryDelay,
	}, nil
}

// Start serves updates via long polling until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("create bot handler: %w", err)
	}

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if message == nil || message.From == nil {
			return nil
		}
		return b.start(ctx.Context(), message.Chat.ID, message.From.ID, message.Text)
	}, th.CommandEqual("start"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		return b.support(ctx.Context(), update.Message.Chat.ID)
	}, th.CommandEqual("support"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		return b.exploreCampaigns(ctx.Context(), update.Message.Chat.ID)
	}, th.CommandEqual("explore_campaigns"))

	go func() {
		<-ctx.Done()
		_ = handler.Stop()
	}()

	b.Log.Info("bot started")
	return handler.Start()
}

// IsPremium reports whether the account is a chat member with Telegram
// Premium. It satisfies referral.PremiumChecker.
func (b *Bot) IsPremium(ctx context.Context, accountID string) (bool, error) {
	id, err := strconv.ParseInt(accountID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("account id %q is not a telegram id: %w", accountID, err)
	}
	member, err := b.Instance.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(id),
		UserID: id,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d: %w", id, err)
	}
	user := member.MemberUser()
	return member.MemberStatus() == telego.MemberStatusMember && user.IsPremium, nil
}

// start registers the sender, passing along the referral code from
// "/start <code>", and greets them.
func (b *Bot) start(ctx context.Context, chatID, fromID int64, text string) error {
	code := ""
	if parts := strings.Fields(text); len(parts) > 1 {
		code = parts[1]
	}
	accountID := strconv.FormatInt(fromID, 10)
	log := b.Log.WithFields(logrus.Fields{"user_id": accountID, "referral_code": code})

	res, regErr := b.Referrals.Register(ctx, referral.Registration{AccountID: accountID, ReferralCode: code})
	switch {
	case regErr == nil && res.Referred:
		log.WithField("premium", res.Premium).Info("referral registered")
	case regErr != nil && !errors.Is(regErr, referral.ErrReferrerNotFound):
		log.WithError(regErr).Error("registration failed")
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🕹Play").WithURL(b.Options.PlayURL),
		),
	)
	_ = b.call(ctx, "send welcome", func() error {
		if b.Options.PhotoURL == "" {
			_, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(chatID), welcomeCaption).WithReplyMarkup(keyboard))
			return err
		}
		_, err := b.Instance.SendPhoto(ctx, tu.Photo(tu.ID(chatID), tu.FileFromURL(b.Options.PhotoURL)).
			WithCaption(welcomeCaption).
			WithReplyMarkup(keyboard))
		return err
	})

	if errors.Is(regErr, referral.ErrReferrerNotFound) {
		msg := fmt.Sprintf("Referrer ID: %s does not exist, please check the invitation ID.", code)
		_ = b.call(ctx, "send referrer not found", func() error {
			_, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(chatID), msg))
			return err
		})
	}
	return nil
}

func (b *Bot) support(ctx context.Context, chatID int64) error {
	msg := fmt.Sprintf(supportText, b.Options.SupportContact)
	return b.call(ctx, "send support", func() error {
		_, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(chatID), msg))
		return err
	})
}

func (b *Bot) exploreCampaigns(ctx context.Context, chatID int64) error {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🍻Explore Campaigns").WithURL(b.Options.CampaignsURL),
		),
	)
	return b.call(ctx, "send campaigns", func() error {
		_, err := b.Instance.SendMessage(ctx, tu.Message(
			tu.ID(chatID),
			"🚀 Engage the best airdrops by tap on Explore Campaigns.",
		).WithReplyMarkup(keyboard))
		return err
	})
}

// call retries a Telegram request a fixed number of times with a constant
// pause in between.
func (b *Bot) call(ctx context.Context, what string, fn func() error) error {
	attempts := b.SendAttempts
	if attempts <= 0 {
		attempts = defaultSendAttempts
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.RetryDelay), uint64(attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		b.Log.WithError(err).WithField("retry_in", wait.String()).Warnf("%s failed", what)
	})
	if err != nil {
		b.Log.WithError(err).Errorf("%s gave up", what)
	}
	return err
}
