package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"backend_inventory/models"
)

// BrokenDeviceNotifier оповещает о переходе устройства в статус Broken
type BrokenDeviceNotifier interface {
	NotifyBroken(ctx context.Context, device *models.Device, actor Actor) error
}

// TelegramClient отправляет уведомления о поломках в чат Telegram
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *log.Logger
}

// NewTelegramClient создает новый экземпляр Telegram клиента
func NewTelegramClient(token, chatID string, logger *log.Logger) (*TelegramClient, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("Telegram не настроен")
	}

	// Парсим chat ID
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("неверный chat ID: %s", chatID)
	}

	// Создаем Bot API клиент
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}

	// В продакшене отключаем debug
	bot.Debug = false

	if logger != nil {
		logger.Printf("✅ Telegram бот авторизован: %s", bot.Self.UserName)
	}

	return &TelegramClient{
		bot:    bot,
		chatID: chatIDInt,
		logger: logger,
	}, nil
}

// SendMessage отправляет сообщение в чат уведомлений
func (tc *TelegramClient) SendMessage(message string) (*tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(tc.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML

	sentMsg, err := tc.bot.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки сообщения: %w", err)
	}

	return &sentMsg, nil
}

// NotifyBroken отправляет уведомление о поломке устройства
func (tc *TelegramClient) NotifyBroken(_ context.Context, device *models.Device, actor Actor) error {
	_, err := tc.SendMessage(FormatBrokenMessage(device, actor))
	return err
}

// FormatBrokenMessage формирует текст уведомления о поломке
func FormatBrokenMessage(device *models.Device, actor Actor) string {
	reason := ""
	if device.BrokenReason != nil {
		reason = *device.BrokenReason
	}

	text := fmt.Sprintf("🔧 <b>Устройство неисправно</b>\n%s: %s (S/N %s)\nПричина: %s",
		html.EscapeString(string(device.Kind)),
		html.EscapeString(device.Name),
		html.EscapeString(device.Serial),
		html.EscapeString(reason))

	if device.BrokenDescription != nil && *device.BrokenDescription != "" {
		text += "\nОписание: " + html.EscapeString(*device.BrokenDescription)
	}
	if device.Holder.IsSet() {
		text += "\nДержатель: " + html.EscapeString(device.Holder.Name)
	}
	if label := actor.Label(); label != "" {
		text += "\nОтметил: " + html.EscapeString(label)
	}

	return text
}
