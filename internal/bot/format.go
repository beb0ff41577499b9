package bot

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/service"
)

const (
	btnSkip          = "⏭️ Пропустить"
	btnNo            = "Нет"
	btnConfirm       = "✅ Подтвердить"
	btnCancel        = "↩️ Отмена"
	btnCancelDialog  = "⏪ Отменить ввод"
	noCategory       = "Без категории"
	noCategoryKey    = "__no_category__"
	iconDefault      = "🟢"
	iconDue          = "⏳"
	iconOverdue      = "⚠️"
	iconRecurring    = "♻️"
	iconDone         = "✔️"
	menuLabelNewTask = "➕ Новая задача"
	menuLabelTasks   = "📋 Задачи"
	menuLabelOverdue = "⚠️ Просроченные"
	menuLabelHelp    = "ℹ️ Помощь"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

var dateInputLayouts = []string{dateTimeLayout, dateLayout, "02.01.2006 15:04", "02.01.2006"}

var priorityLabels = map[model.TaskPriority]string{
	model.PriorityLow:    "🔽 Низкий",
	model.PriorityMedium: "⏺ Средний",
	model.PriorityHigh:   "🔼 Высокий",
	model.PriorityUrgent: "🔥 Срочный",
}

var statusLabels = map[model.TaskStatus]string{
	model.StatusPending:    "ожидает",
	model.StatusInProgress: "в работе",
	model.StatusCompleted:  "выполнена",
}

func parseDateInput(text string, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateInputLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

func parsePriorityInput(text string) (model.TaskPriority, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	for priority, label := range priorityLabels {
		if value == strings.ToLower(label) || value == strings.ToLower(string(priority)) {
			return priority, true
		}
	}
	return "", false
}

// parsePatternInput returns the pattern to store and whether the task recurs.
func parsePatternInput(text string) (string, bool, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	switch value {
	case strings.ToLower(btnNo), "no", "n", "-", strings.ToLower(btnSkip), "пропустить", "skip":
		return "", false, true
	}
	for _, p := range recurrence.Patterns() {
		if value == strings.ToLower(service.PatternLabel(p)) {
			return p.String(), true, true
		}
	}
	if p := recurrence.ParsePattern(value); p.Valid() {
		return p.String(), true, true
	}
	return "", false, false
}

func parseStatusInput(text string) (model.TaskStatus, bool) {
	status := model.TaskStatus(strings.ToUpper(strings.TrimSpace(text)))
	return status, model.ValidStatus(status)
}

func priorityLabel(p model.TaskPriority) string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return string(p)
}

func statusLabel(s model.TaskStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func recurrenceLabel(raw string) string {
	p := recurrence.ParsePattern(raw)
	if !p.Valid() {
		return fmt.Sprintf("не повторяется (неизвестный период %q)", escape(raw))
	}
	return service.PatternLabel(p)
}

func formatTask(task model.Task, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	switch {
	case task.Status == model.StatusCompleted:
		icon = iconDone
	case task.DueDate != nil && now.After(task.DueDate.In(now.Location())):
		icon = iconOverdue
	case task.DueDate != nil && task.DueDate.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s", icon, task.ID, escape(normalizeTitle(task.Title))))
	if task.Priority == model.PriorityHigh || task.Priority == model.PriorityUrgent {
		b.WriteString(" " + priorityLabel(task.Priority))
	}
	if task.Status == model.StatusInProgress {
		b.WriteString(" · " + statusLabel(task.Status))
	}
	b.WriteByte('\n')

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) && task.Status != model.StatusCompleted {
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s, <b>просрочено</b>\n", d.Format(dateTimeLayout)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s\n", d.Format(dateTimeLayout)))
		}
	}
	if task.IsRecurring {
		b.WriteString(fmt.Sprintf("   %s %s\n", iconRecurring, recurrenceLabel(task.RecurrencePattern)))
	}
	if task.ParentID != nil {
		if task.Generated {
			b.WriteString(fmt.Sprintf("   ↪️ повтор задачи #%d\n", *task.ParentID))
		} else {
			b.WriteString(fmt.Sprintf("   ↪️ подзадача #%d\n", *task.ParentID))
		}
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizedCategory(categoryID *uint, catNames map[uint]string) (string, string) {
	if categoryID == nil {
		return noCategoryKey, categoryLabel(noCategory)
	}
	if name, ok := catNames[*categoryID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noCategoryKey, categoryLabel(noCategory)
		}
		return strings.ToLower(trimmed), categoryLabel(trimmed)
	}
	return noCategoryKey, categoryLabel(noCategory)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := normalizeTitle(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

var categoryIcons = map[string]string{
	"учеба":                     "🎓",
	"работа":                    "💼",
	"покупки":                   "🛒",
	"здоровье":                  "🩺",
	"личное":                    "🧩",
	strings.ToLower(noCategory): "📁",
}

func categoryLabel(name string) string {
	base := strings.TrimSpace(name)
	icon, ok := categoryIcons[strings.ToLower(base)]
	if !ok {
		icon = "🏷️"
	}
	return icon + " " + escape(normalizeTitle(base))
}

// matchesAny compares user input against button labels and typed synonyms.
func matchesAny(text string, options ...string) bool {
	value := strings.TrimSpace(text)
	for _, opt := range options {
		if strings.EqualFold(value, opt) {
			return true
		}
	}
	return false
}

func isSkipInput(text string) bool {
	return matchesAny(text, btnSkip, "-", "пропустить", "skip")
}

func isConfirmInput(text string) bool {
	return matchesAny(text, btnConfirm, "подтвердить", "да", "yes")
}

func isCancelInput(text string) bool {
	return matchesAny(text, btnCancel, "отмена", "нет", "no")
}

func isCancelDialogInput(text string) bool {
	return matchesAny(text, btnCancelDialog, "отменить ввод")
}

// replyKeyboard lays labels out row by row. Dialog keyboards hide after one
// tap; the main menu stays.
func replyKeyboard(oneTime bool, rows ...[]string) tgbotapi.ReplyKeyboardMarkup {
	buttonRows := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		buttonRows = append(buttonRows, buttons)
	}
	kb := tgbotapi.NewReplyKeyboard(buttonRows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = oneTime
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(false,
		[]string{menuLabelNewTask, menuLabelTasks},
		[]string{menuLabelOverdue, menuLabelHelp},
	)
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true, []string{btnConfirm, btnCancel})
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true, []string{btnCancelDialog})
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true, []string{btnSkip}, []string{btnCancelDialog})
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true,
		[]string{priorityLabels[model.PriorityLow], priorityLabels[model.PriorityMedium]},
		[]string{priorityLabels[model.PriorityHigh], priorityLabels[model.PriorityUrgent]},
		[]string{btnSkip, btnCancelDialog},
	)
}

func patternKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true,
		[]string{service.PatternLabel(recurrence.Daily), service.PatternLabel(recurrence.Weekly)},
		[]string{service.PatternLabel(recurrence.Monthly), service.PatternLabel(recurrence.Yearly)},
		[]string{btnNo, btnCancelDialog},
	)
}

func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(true,
		[]string{"Учеба", "Работа"},
		[]string{"Покупки", "Здоровье"},
		[]string{btnSkip, btnCancelDialog},
	)
}
