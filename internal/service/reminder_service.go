package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/repository"
)

const dispatchBatch = 100

// generatedNotifyTimeout bounds one new-instance notification so a slow chat
// API cannot hold up the sweep.
var generatedNotifyTimeout = 10 * time.Second

// Notifier delivers messages to a task's owner.
type Notifier interface {
	NotifyReminder(ctx context.Context, user model.User, task model.Task) error
	NotifyGenerated(ctx context.Context, user model.User, instance model.Task) error
}

// ReminderService builds human-readable summaries and delivers reminders.
type ReminderService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	reminderRepo *repository.ReminderRepository
	userRepo     *repository.UserRepository
	log          zerolog.Logger
}

func NewReminderService(
	taskRepo *repository.TaskRepository,
	categoryRepo *repository.CategoryRepository,
	reminderRepo *repository.ReminderRepository,
	userRepo *repository.UserRepository,
	log zerolog.Logger,
) *ReminderService {
	return &ReminderService{
		taskRepo:     taskRepo,
		categoryRepo: categoryRepo,
		reminderRepo: reminderRepo,
		userRepo:     userRepo,
		log:          log.With().Str("component", "reminders").Logger(),
	}
}

// DispatchDue sends every unsent reminder due at now and marks it sent. A
// reminder whose delivery fails stays unsent and is retried next run.
func (s *ReminderService) DispatchDue(ctx context.Context, now time.Time, notifier Notifier) (int, error) {
	reminders, err := s.reminderRepo.ListDue(ctx, now, dispatchBatch)
	if err != nil {
		return 0, err
	}

	users := make(map[uint]*model.User)
	sent := 0
	for _, reminder := range reminders {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		log := s.log.With().Uint("reminder_id", reminder.ID).Uint("task_id", reminder.TaskID).Logger()

		user, ok := users[reminder.Task.UserID]
		if !ok {
			user, err = s.userRepo.FindByID(ctx, reminder.Task.UserID)
			if err != nil {
				log.Error().Err(err).Msg("load reminder owner")
				continue
			}
			users[user.ID] = user
		}

		if err := notifier.NotifyReminder(ctx, *user, reminder.Task); err != nil {
			log.Warn().Err(err).Msg("deliver reminder")
			continue
		}
		if err := s.reminderRepo.MarkSent(ctx, reminder.ID); err != nil {
			if errors.Is(err, repository.ErrOptimisticLock) {
				log.Debug().Msg("reminder already marked sent")
				continue
			}
			log.Error().Err(err).Msg("mark reminder sent")
			continue
		}
		sent++
	}
	return sent, nil
}

// GeneratedHook returns a RecurrenceOptions.OnGenerated callback that tells
// the owner about each new instance. The send gets its own deadline and
// outlives cancellation of the sweep; failures are only logged.
func (s *ReminderService) GeneratedHook(notifier Notifier) func(ctx context.Context, origin, instance model.Task) {
	return func(ctx context.Context, origin, instance model.Task) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generatedNotifyTimeout)
		defer cancel()

		log := s.log.With().Uint("task_id", origin.ID).Uint("instance_id", instance.ID).Logger()
		user, err := s.userRepo.FindByID(ctx, instance.UserID)
		if err != nil {
			log.Error().Err(err).Msg("load instance owner")
			return
		}
		if err := notifier.NotifyGenerated(ctx, *user, instance); err != nil {
			log.Warn().Err(err).Msg("notify generated instance")
		}
	}
}

func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListActiveOrRecurring(ctx, user.ID)
	if err != nil {
		return "", err
	}

	categories, err := s.categoryRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	var pending []model.Task
	var recurring []model.Task

	for _, task := range tasks {
		if task.IsRecurring && !task.Generated {
			recurring = append(recurring, task)
			continue
		}
		if task.Status != model.StatusCompleted {
			pending = append(pending, task)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		switch {
		case pending[i].DueDate == nil && pending[j].DueDate == nil:
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		case pending[i].DueDate == nil:
			return false
		case pending[j].DueDate == nil:
			return true
		default:
			return pending[i].DueDate.Before(*pending[j].DueDate)
		}
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🔥 <b>Текущие задачи</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— нет открытых задач\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatTask(task, catNames, now))
		}
	}

	builder.WriteString("\n♻️ <b>Регулярные задачи</b>\n")
	if len(recurring) == 0 {
		builder.WriteString("— нет регулярных задач\n")
	} else {
		for _, task := range recurring {
			builder.WriteString(formatRecurring(task, now, catNames))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, catNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))
	sb.WriteString(formatCategory(task, catNames))

	switch task.Priority {
	case model.PriorityHigh, model.PriorityUrgent:
		sb.WriteString(fmt.Sprintf(" ❗<b>%s</b>", task.Priority))
	}
	if task.Status == model.StatusInProgress {
		sb.WriteString(" · в работе")
	}

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s, <b>просрочено</b>", d.Format("2006-01-02 15:04")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s · осталось ≈%d дн.", d.Format("2006-01-02 15:04"), daysLeft))
		}
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatRecurring(task model.Task, now time.Time, catNames map[uint]string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("♻️ %s", html.EscapeString(strings.TrimSpace(task.Title))))
	sb.WriteString(formatCategory(task, catNames))

	pattern := recurrence.ParsePattern(task.RecurrencePattern)
	if !pattern.Valid() {
		sb.WriteString(fmt.Sprintf("\n   ⚠️ Неизвестный период %q, задача не повторяется", html.EscapeString(task.RecurrencePattern)))
		sb.WriteByte('\n')
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\n   🔁 %s", PatternLabel(pattern)))
	if ref, ok := recurrence.TrackedReferenceDate(task); ok {
		next := recurrence.NextDueDate(pattern, ref).In(now.Location())
		sb.WriteString(fmt.Sprintf("\n   📆 Следующая дата: %s", next.Format("2006-01-02 15:04")))
	}
	if task.RecurrenceEndDate != nil {
		end := task.RecurrenceEndDate.In(now.Location())
		if now.After(end) {
			sb.WriteString(fmt.Sprintf("\n   🛑 Повторение закончилось %s", end.Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   🛑 Повторять до %s", end.Format("2006-01-02")))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatCategory(task model.Task, catNames map[uint]string) string {
	if task.CategoryID == nil {
		return ""
	}
	name := strings.TrimSpace(catNames[*task.CategoryID])
	if name == "" {
		return ""
	}
	return fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(name))
}

// PatternLabel is the Russian label shown for a recurrence pattern.
func PatternLabel(p recurrence.Pattern) string {
	switch p {
	case recurrence.Daily:
		return "каждый день"
	case recurrence.Weekly:
		return "каждую неделю"
	case recurrence.Monthly:
		return "каждый месяц"
	case recurrence.Yearly:
		return "каждый год"
	default:
		return p.String()
	}
}
