package bot

import (
	"context"
	"fmt"
	"strings"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

var _ service.Notifier = (*Bot)(nil)

// NotifyReminder sends a task reminder to its owner.
func (b *Bot) NotifyReminder(_ context.Context, user model.User, task model.Task) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔔 <b>Напоминание</b>\n<b>#%d</b> %s", task.ID, escape(normalizeTitle(task.Title))))
	if task.DueDate != nil {
		sb.WriteString(fmt.Sprintf("\n⏰ Срок: %s", task.DueDate.In(b.loc).Format(dateTimeLayout)))
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n📝 %s", escape(task.Description)))
	}
	return b.sendText(user.TelegramID, sb.String())
}

// NotifyGenerated tells the owner about a freshly spawned recurring instance.
func (b *Bot) NotifyGenerated(_ context.Context, user model.User, instance model.Task) error {
	text := fmt.Sprintf("%s Новая задача по расписанию: <b>#%d</b> %s", iconRecurring, instance.ID, escape(normalizeTitle(instance.Title)))
	if instance.DueDate != nil {
		text += fmt.Sprintf("\n⏰ Срок: %s", instance.DueDate.In(b.loc).Format(dateTimeLayout))
	}
	return b.sendText(user.TelegramID, text)
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now().In(b.loc)
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			b.log.Error().Err(err).Int64("telegram_id", user.TelegramID).Msg("build summary")
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.log.Warn().Err(err).Int64("telegram_id", user.TelegramID).Msg("send summary")
		}
	}
	return nil
}
