package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
)

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if !msg.IsCommand() || args == "" {
		return b.sendTaskList(ctx, msg.Chat.ID, user)
	}

	status, ok := parseStatusInput(args)
	if !ok {
		return b.sendText(msg.Chat.ID, "Статус может быть pending, in_progress или completed.")
	}
	tasks, total, err := b.taskSvc.ListTasks(ctx, user, repository.TaskFilter{Status: status})
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Задач со статусом «%s» нет.", statusLabel(status)))
	}

	now := b.now().In(b.loc)
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b> (%d)\n\n", statusLabel(status), total))
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleOverdue(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	now := b.now().In(b.loc)
	tasks, err := b.taskSvc.ListOverdue(ctx, user, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, "🎉 Просроченных задач нет.")
	}

	var builder strings.Builder
	builder.WriteString("⚠️ <b>Просроченные задачи</b>\n\n")
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleSetStatus(ctx context.Context, msg *tgbotapi.Message, status model.TaskStatus) error {
	taskID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Укажи ID задачи: /%s 12", msg.Command()))
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.SetStatus(ctx, user, taskID, status, b.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Задача не найдена.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user_id", user.ID).Str("status", string(status)).Msg("task status changed")
	if status == model.StatusCompleted {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(task.Title))))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🚧 Задача «%s» теперь %s.", escape(normalizeTitle(task.Title)), statusLabel(status)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 12")
	}
	return b.askConfirmation(ctx, msg.Chat.ID, msg.From, taskID, actionDelete)
}

func (b *Bot) handleSubtasks(ctx context.Context, msg *tgbotapi.Message) error {
	parentID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /subtasks 12")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	children, err := b.taskSvc.ListSubtasks(ctx, user, parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Задача не найдена.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}
	if len(children) == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("У задачи #%d нет подзадач. Добавь: /subtask %d название", parentID, parentID))
	}

	now := b.now().In(b.loc)
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🧩 <b>Подзадачи #%d</b>\n\n", parentID))
	for _, task := range children {
		builder.WriteString(formatTask(task, now))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleAddSubtask(ctx context.Context, msg *tgbotapi.Message) error {
	rawID, title, _ := strings.Cut(strings.TrimSpace(msg.CommandArguments()), " ")
	parentID, err := parseTaskID(rawID, "")
	if err != nil || strings.TrimSpace(title) == "" {
		return b.sendText(msg.Chat.ID, "Формат: /subtask 12 Купить коробки")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateSubtask(ctx, user, parentID, service.TaskInput{Title: title})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Задача не найдена.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сохранить подзадачу: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🧩 Подзадача #%d «%s» добавлена к #%d.", task.ID, escape(normalizeTitle(task.Title)), parentID))
}

// Inline buttons carry "<action>:<task id>".
var callbackActions = map[string]confirmationAction{
	"complete": actionComplete,
	"delete":   actionDelete,
}

func callbackData(action string, taskID uint) string {
	return action + ":" + strconv.FormatUint(uint64(taskID), 10)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	name, rawID, _ := strings.Cut(cb.Data, ":")
	action, known := callbackActions[name]
	taskID, err := parseTaskID(rawID, "")
	if !known || err != nil {
		b.log.Debug().Str("data", cb.Data).Msg("ignore callback")
		return nil
	}
	return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID, action)
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.confirmations.drop(msg.From.ID)
		return b.applyConfirmation(ctx, msg.Chat.ID, msg.From, req)
	case isCancelInput(text):
		b.confirmations.drop(msg.From.ID)
		return b.sendText(msg.Chat.ID, "🔹 Главное меню")
	}
	prompt := "Подтверди или отмени выполнение задачи."
	if req.action == actionDelete {
		prompt = "Подтверди или отмени удаление задачи."
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
}

// askConfirmation parks the action until the user answers yes or no.
func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint, action confirmationAction) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.sendText(chatID, "Задача не найдена.")
	}
	if err != nil {
		return err
	}

	title := escape(normalizeTitle(task.Title))
	var question string
	switch action {
	case actionComplete:
		if task.Status == model.StatusCompleted {
			return b.sendText(chatID, "Задача уже выполнена.")
		}
		question = fmt.Sprintf("Отметить задачу «%s» (#%d) как выполненную?", title, task.ID)
	case actionDelete:
		question = fmt.Sprintf("Удалить задачу «%s» (#%d)?", title, task.ID)
		if task.IsRecurring && !task.Generated {
			question += "\nУже созданные повторы останутся в списке."
		}
	}

	b.confirmations.put(from.ID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, question, confirmKeyboard())
}

func (b *Bot) applyConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, req confirmationRequest) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	var (
		task *model.Task
		done string
	)
	switch req.action {
	case actionComplete:
		task, err = b.taskSvc.CompleteTask(ctx, user, req.taskID, b.now())
		done = "✅ Задача «%s» выполнена."
	case actionDelete:
		if task, err = b.taskSvc.GetTask(ctx, user, req.taskID); err == nil {
			err = b.taskSvc.DeleteTask(ctx, user, req.taskID)
		}
		done = "🗑 Задача «%s» удалена."
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.sendTextWithRemove(chatID, "Задача не найдена или уже удалена.")
	}
	if err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user_id", user.ID).Int("action", int(req.action)).Msg("confirmed task action")
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf(done, escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}

	categories, _ := b.categorySvc.List(ctx, user)
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	now := b.now().In(b.loc)
	active := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status != model.StatusCompleted {
			active = append(active, task)
		}
	}
	if len(active) == 0 {
		return b.sendText(chatID, "У тебя нет активных задач. Добавь новую через /newtask.")
	}

	// Named categories alphabetically, uncategorised last; inside a category
	// dated tasks first, earliest due first.
	sort.SliceStable(active, func(i, j int) bool {
		ki, ni := normalizedCategory(active[i].CategoryID, catNames)
		kj, nj := normalizedCategory(active[j].CategoryID, catNames)
		if ki != kj {
			if ki == noCategoryKey || kj == noCategoryKey {
				return kj == noCategoryKey
			}
			if ni != nj {
				return ni < nj
			}
			return ki < kj
		}
		return dueBefore(active[i], active[j])
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Текущие задачи</b>\n")
	builder.WriteString("Нажми на кнопку, чтобы отметить задачу выполненной или удалить её.\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	lastKey := ""
	for i, task := range active {
		key, display := normalizedCategory(task.CategoryID, catNames)
		if i == 0 || key != lastKey {
			builder.WriteString(fmt.Sprintf("\n<b>%s</b>\n", display))
			lastKey = key
		}
		builder.WriteString(formatTask(task, now))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 20)), callbackData("complete", task.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", callbackData("delete", task.ID)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func dueBefore(a, b model.Task) bool {
	switch {
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate == nil && b.DueDate != nil:
		return false
	}
	return a.ID < b.ID
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}
