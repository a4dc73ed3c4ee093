package compose

import (
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"broadcastbot/internal/locales"
)

func mainMenuKeyboard(l *i18n.Localizer) *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(locales.GetMessage(l, "BtnSendPost", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnVideoNote", nil, nil)),
		),
		tu.KeyboardRow(
			tu.KeyboardButton(locales.GetMessage(l, "BtnVoice", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnEditPost", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnDeletePost", nil, nil)),
		),
	).WithResizeKeyboard()
}

func kindKeyboard(l *i18n.Localizer) *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(locales.GetMessage(l, "BtnKindText", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnKindMedia", nil, nil)),
		),
	).WithResizeKeyboard()
}

func yesNoKeyboard(l *i18n.Localizer) *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(locales.GetMessage(l, "BtnYes", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnNo", nil, nil)),
		),
	).WithResizeKeyboard()
}

func scopeKeyboard(l *i18n.Localizer) *telego.ReplyKeyboardMarkup {
	return tu.Keyboard(
		tu.KeyboardRow(
			tu.KeyboardButton(locales.GetMessage(l, "BtnHideAll", nil, nil)),
			tu.KeyboardButton(locales.GetMessage(l, "BtnHidePart", nil, nil)),
		),
	).WithResizeKeyboard()
}

func channelKeyboard(names []string) *telego.ReplyKeyboardMarkup {
	rows := make([][]telego.KeyboardButton, 0, len(names))
	for _, name := range names {
		rows = append(rows, tu.KeyboardRow(tu.KeyboardButton(name)))
	}
	kb := tu.Keyboard(rows...).WithResizeKeyboard()
	kb.OneTimeKeyboard = true
	return kb
}

func removeKeyboard() *telego.ReplyKeyboardRemove {
	return &telego.ReplyKeyboardRemove{RemoveKeyboard: true}
}
