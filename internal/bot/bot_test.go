package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
	"todo-planner/internal/testutil"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	acks int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) texts() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var parts []string
	for _, m := range f.sent {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n---\n")
}

type botFixture struct {
	bot   *Bot
	api   *fakeAPI
	tasks *service.TaskService
	users *repository.UserRepository
}

const chatID = int64(1001)

func newBotFixture(t *testing.T) botFixture {
	t.Helper()
	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	tasks := service.NewTaskService(taskRepo, categoryRepo, reminderRepo)
	reminders := service.NewReminderService(taskRepo, categoryRepo, reminderRepo, users, zerolog.Nop())
	api := &fakeAPI{}

	b := newBot(api, users, service.NewCategoryService(categoryRepo), tasks, reminders, zerolog.Nop())
	b.loc = time.UTC
	b.now = func() time.Time { return testutil.Time("2024-01-15T12:00") }
	return botFixture{bot: b, api: api, tasks: tasks, users: users}
}

func (f botFixture) send(t *testing.T, text string) {
	t.Helper()
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID, FirstName: "Ann"},
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (f botFixture) user(t *testing.T) *model.User {
	t.Helper()
	user, err := f.users.UpsertFromTelegram(context.Background(), chatID, "Ann", "", "")
	require.NoError(t, err)
	return user
}

func (f botFixture) conversation() *conversationState {
	state, _ := f.bot.conversations.get(chatID)
	return state
}

func TestNewTaskConversationCreatesRecurringTask(t *testing.T) {
	f := newBotFixture(t)

	for _, step := range []string{
		"/newtask",
		"Pay rent",
		"Пропустить",
		"Дом",
		"2024-01-31 10:00",
		"🔥 Срочный",
		"Каждый месяц",
		"2024-12-31",
		"2024-01-30 09:00",
	} {
		f.send(t, step)
	}

	assert.Contains(t, f.api.texts(), "Задача сохранена")
	assert.Nil(t, f.conversation())

	tasks, total, err := f.tasks.ListTasks(context.Background(), f.user(t), repository.TaskFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	task := tasks[0]
	assert.Equal(t, "Pay rent", task.Title)
	assert.Equal(t, model.PriorityUrgent, task.Priority)
	assert.True(t, task.IsRecurring)
	assert.Equal(t, "MONTHLY", task.RecurrencePattern)
	require.NotNil(t, task.DueDate)
	assert.True(t, task.DueDate.Equal(testutil.Time("2024-01-31T10:00")))
	require.NotNil(t, task.RecurrenceEndDate)
	assert.True(t, task.RecurrenceEndDate.Equal(testutil.Time("2024-12-31T00:00")))
	require.NotNil(t, task.ReminderTime)
	assert.NotNil(t, task.CategoryID)
}

func TestNewTaskConversationRejectsBadInput(t *testing.T) {
	f := newBotFixture(t)

	f.send(t, "/newtask")
	f.send(t, "Plain")
	f.send(t, "-")
	f.send(t, "-")
	f.send(t, "tomorrow")
	assert.Contains(t, f.api.last().Text, "Не могу распознать дату")
	assert.Equal(t, stageDueDate, f.conversation().stage)

	f.send(t, "-")
	f.send(t, "-")
	f.send(t, "every other tuesday")
	assert.Equal(t, stagePattern, f.conversation().stage)

	f.send(t, btnCancelDialog)
	assert.Nil(t, f.conversation())
}

func TestStatusAndSubtaskCommands(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	parent, err := f.tasks.CreateTask(ctx, f.user(t), service.TaskInput{Title: "Move"})
	require.NoError(t, err)

	f.send(t, "/subtask "+uintString(parent.ID)+" pack books")
	assert.Contains(t, f.api.last().Text, "Подзадача")

	f.send(t, "/subtasks "+uintString(parent.ID))
	assert.Contains(t, f.api.last().Text, "Pack books")

	f.send(t, "/progress "+uintString(parent.ID))
	assert.Contains(t, f.api.last().Text, "в работе")

	f.send(t, "/complete "+uintString(parent.ID))
	assert.Contains(t, f.api.last().Text, "выполнена")

	stored, err := f.tasks.GetTask(ctx, f.user(t), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)

	f.send(t, "/complete 9999")
	assert.Contains(t, f.api.last().Text, "не найдена")

	f.send(t, "/tasks completed")
	assert.Contains(t, f.api.last().Text, "Move")
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateTask(ctx, f.user(t), service.TaskInput{Title: "Temp"})
	require.NoError(t, err)

	f.send(t, "/delete "+uintString(task.ID))
	_, pending := f.bot.confirmations.get(chatID)
	require.True(t, pending)

	f.send(t, btnConfirm)
	assert.Contains(t, f.api.texts(), "удалена")

	_, err = f.tasks.GetTask(ctx, f.user(t), task.ID)
	assert.Error(t, err)
}

func TestCompleteButtonAsksThenCompletes(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateTask(ctx, f.user(t), service.TaskInput{Title: "Water plants"})
	require.NoError(t, err)

	f.bot.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    callbackData("complete", task.ID),
	}})
	assert.Equal(t, 1, f.api.acks)
	req, pending := f.bot.confirmations.get(chatID)
	require.True(t, pending)
	assert.Equal(t, actionComplete, req.action)

	f.send(t, "что?")
	assert.Contains(t, f.api.last().Text, "Подтверди")

	f.send(t, btnConfirm)
	stored, err := f.tasks.GetTask(ctx, f.user(t), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Contains(t, f.api.texts(), "выполнена")

	f.bot.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb2",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    "archive:1",
	}})
	_, pending = f.bot.confirmations.get(chatID)
	assert.False(t, pending)
}

func TestNotifierSendsToOwnerChat(t *testing.T) {
	f := newBotFixture(t)
	user := model.User{TelegramID: 555}
	due := testutil.Time("2024-02-01T08:00")

	require.NoError(t, f.bot.NotifyReminder(context.Background(), user, model.Task{ID: 3, Title: "call <mom>", DueDate: &due}))
	msg := f.api.last()
	assert.Equal(t, int64(555), msg.ChatID)
	assert.Contains(t, msg.Text, "Call &lt;mom&gt;")
	assert.Contains(t, msg.Text, "2024-02-01 08:00")

	require.NoError(t, f.bot.NotifyGenerated(context.Background(), user, model.Task{ID: 9, Title: "rent", DueDate: &due}))
	assert.Contains(t, f.api.last().Text, "#9")
}

func TestParseHelpers(t *testing.T) {
	got, err := parseDateInput("31.01.2024 10:30", time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(testutil.Time("2024-01-31T10:30")))

	_, err = parseDateInput("someday", time.UTC)
	assert.Error(t, err)

	tests := []struct {
		in        string
		pattern   string
		recurring bool
		ok        bool
	}{
		{"Нет", "", false, true},
		{"каждую неделю", "WEEKLY", true, true},
		{"yearly", "YEARLY", true, true},
		{"BIWEEKLY", "", false, false},
	}
	for _, tt := range tests {
		pattern, recurring, ok := parsePatternInput(tt.in)
		assert.Equal(t, tt.pattern, pattern, tt.in)
		assert.Equal(t, tt.recurring, recurring, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}

	p, ok := parsePriorityInput("high")
	assert.True(t, ok)
	assert.Equal(t, model.PriorityHigh, p)

	status, ok := parseStatusInput("in_progress")
	assert.True(t, ok)
	assert.Equal(t, model.StatusInProgress, status)
}

func TestHelpListsEveryDescribedCommand(t *testing.T) {
	f := newBotFixture(t)

	f.send(t, "/help")
	text := f.api.last().Text
	for _, cmd := range f.bot.menuCommands() {
		assert.Contains(t, text, "/"+cmd.Command)
	}
	assert.NotContains(t, text, "/start")
	assert.Contains(t, text, "&lt;id&gt;")

	f.send(t, "/unknown")
	assert.Contains(t, f.api.last().Text, "/help")
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
