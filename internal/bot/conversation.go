package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/service"
)

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.log.Info().Int64("from", msg.From.ID).Msg("start new task conversation")
	b.confirmations.drop(msg.From.ID)
	b.conversations.put(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state, ok := b.conversations.get(msg.From.ID)
	if !ok {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Выбери категорию или отправь свою (можно «Пропустить»).", categoryKeyboard())
	case stageCategory:
		if !isSkipInput(text) {
			state.input.Category = text
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Укажи срок в формате <code>2025-11-30 18:00</code> или <code>2025-11-30</code> (или «Пропустить»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := parseDateInput(text, b.loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-11-30 18:00</code> или «Пропустить».", skipKeyboard())
			}
			state.input.DueDate = &due
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "❗ Насколько задача важна?", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			priority, ok := parsePriorityInput(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери приоритет кнопкой.", priorityKeyboard())
			}
			state.input.Priority = priority
		}
		state.stage = stagePattern
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Повторять задачу?", patternKeyboard())
	case stagePattern:
		pattern, recurring, ok := parsePatternInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери период кнопкой или нажми «Нет».", patternKeyboard())
		}
		state.input.IsRecurring = recurring
		state.input.RecurrencePattern = pattern
		if recurring {
			state.stage = stageRecurrenceEnd
			return b.sendWithReplyMarkup(msg.Chat.ID, "🛑 До какой даты повторять? <code>2026-12-31</code> (или «Пропустить», чтобы без конца).", skipKeyboard())
		}
		state.stage = stageReminder
		return b.sendWithReplyMarkup(msg.Chat.ID, reminderPrompt, skipKeyboard())
	case stageRecurrenceEnd:
		if !isSkipInput(text) {
			end, err := parseDateInput(text, b.loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2026-12-31</code> или «Пропустить».", skipKeyboard())
			}
			if state.input.DueDate != nil && !end.After(*state.input.DueDate) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Дата окончания должна быть позже срока задачи.", skipKeyboard())
			}
			state.input.RecurrenceEndDate = &end
		}
		state.stage = stageReminder
		return b.sendWithReplyMarkup(msg.Chat.ID, reminderPrompt, skipKeyboard())
	case stageReminder:
		if !isSkipInput(text) {
			at, err := parseDateInput(text, b.loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать время. Используй формат <code>2025-11-30 09:00</code> или «Пропустить».", skipKeyboard())
			}
			state.input.ReminderTime = &at
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.conversations.drop(msg.From.ID)
		return err
	default:
		b.conversations.drop(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

const reminderPrompt = "🔔 Когда напомнить? <code>2025-11-30 09:00</code> (или «Пропустить»)."

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateTask(ctx, user, input)
	if err != nil {
		if errors.Is(err, service.ErrTitleRequired) {
			return b.sendText(chatID, "Не удалось сохранить задачу: нужно название.")
		}
		return b.sendText(chatID, fmt.Sprintf("Не удалось сохранить задачу: %s", escape(err.Error())))
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user_id", user.ID).Bool("recurring", task.IsRecurring).Msg("task created")

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Приоритет:</b> %s\n", priorityLabel(task.Priority)))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Срок:</b> %s\n", task.DueDate.In(b.loc).Format(dateTimeLayout)))
	}
	if task.IsRecurring {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> %s", recurrenceLabel(task.RecurrencePattern)))
		if task.RecurrenceEndDate != nil {
			summary.WriteString(fmt.Sprintf(" до %s", task.RecurrenceEndDate.In(b.loc).Format(dateLayout)))
		}
		summary.WriteByte('\n')
	}
	if task.ReminderTime != nil {
		summary.WriteString(fmt.Sprintf("• <b>Напоминание:</b> %s\n", task.ReminderTime.In(b.loc).Format(dateTimeLayout)))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}
