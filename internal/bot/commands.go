package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/model"
)

type commandHandler func(ctx context.Context, msg *tgbotapi.Message) error

type command struct {
	name  string
	args  string
	about string
	run   commandHandler
}

// commandTable lists the bot commands in the order /help shows them.
func (b *Bot) commandTable() []command {
	return []command{
		{name: "newtask", about: "добавить задачу пошагово", run: b.startNewTaskConversation},
		{name: "tasks", args: "[pending|in_progress|completed]", about: "список задач", run: b.handleListTasks},
		{name: "overdue", about: "просроченные задачи", run: b.handleOverdue},
		{name: "complete", args: "<id>", about: "отметить задачу выполненной", run: func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.handleSetStatus(ctx, msg, model.StatusCompleted)
		}},
		{name: "progress", args: "<id>", about: "взять задачу в работу", run: func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.handleSetStatus(ctx, msg, model.StatusInProgress)
		}},
		{name: "delete", args: "<id>", about: "удалить задачу", run: b.handleDelete},
		{name: "subtasks", args: "<id>", about: "подзадачи", run: b.handleSubtasks},
		{name: "subtask", args: "<id> <название>", about: "добавить подзадачу", run: b.handleAddSubtask},
		{name: "categories", about: "список категорий", run: b.handleCategories},
		{name: "report", about: "ежедневный отчёт прямо сейчас", run: b.handleReport},
		{name: "cancel", about: "отменить текущий ввод", run: b.handleCancel},
		{name: "help", about: "подсказки", run: b.handleHelp},
		{name: "start", run: b.handleStart},
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	cmd, ok := b.commands[msg.Command()]
	if !ok {
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
	return cmd.run(ctx, msg)
}

// helpText renders the command list. Commands without a description stay
// out of it.
func (b *Bot) helpText() string {
	var sb strings.Builder
	sb.WriteString("Команды:")
	for _, cmd := range b.commandTable() {
		if cmd.about == "" {
			continue
		}
		sb.WriteString("\n• /" + cmd.name)
		if cmd.args != "" {
			sb.WriteString(" " + escape(cmd.args))
		}
		sb.WriteString(" — " + cmd.about)
	}
	return sb.String()
}

// menuCommands is what the Telegram client shows in its command menu.
func (b *Bot) menuCommands() []tgbotapi.BotCommand {
	var out []tgbotapi.BotCommand
	for _, cmd := range b.commandTable() {
		if cmd.about == "" {
			continue
		}
		out = append(out, tgbotapi.BotCommand{Command: cmd.name, Description: cmd.about})
	}
	return out
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик задач: помогу не забыть дела и сам создам повторяющиеся.</b>\n\n%s",
		escape(name), b.helpText(),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Подсказки</b>\n"+b.helpText())
}

func (b *Bot) handleCancel(_ context.Context, msg *tgbotapi.Message) error {
	b.resetDialog(msg.From.ID)
	return b.sendText(msg.Chat.ID, "⏪ Диалог отменён.")
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminderSvc.DailySummary(ctx, *user, b.now().In(b.loc))
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сформировать отчёт: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	categories, err := b.categorySvc.List(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить категории: %s", escape(err.Error())))
	}
	if len(categories) == 0 {
		return b.sendText(msg.Chat.ID, "Категорий пока нет. Они появятся, когда ты укажешь категорию у задачи.")
	}
	lines := make([]string, 0, len(categories)+1)
	lines = append(lines, "📂 <b>Категории</b>")
	for _, cat := range categories {
		lines = append(lines, "• "+categoryLabel(cat.Name))
	}
	return b.sendText(msg.Chat.ID, strings.Join(lines, "\n"))
}
