package agent

import "github.com/starford/notegraph/internal/heuristics"

type messages struct {
	noteCreated      string
	planTitle        string
	planDefault      string
	stepTitle        string
	planCreated      string
	urlMissing       string
	savedFrom        string
	source           string
	contentSaved     string
	reminderTitle    string
	reminderDefault  string
	eventDefault     string
	reminderBody     string
	reminderCreated  string
	reminderNoCal    string
	eventCreated     string
	summaryTitle     string
	summaryDefault   string
	summaryHeader    string
	summaryUngrouped string
	found            string
	answerTitle      string
	answerDefault    string
	answerBody       string
	answerSaved      string
	failed           string
	emptyRequest     string
}

var catalog = map[string]messages{
	heuristics.LangRU: {
		noteCreated:      "Заметка '%s' создана и проанализирована",
		planTitle:        "План: %s",
		planDefault:      "Обучение/Проект",
		stepTitle:        "Шаг %d: %s",
		planCreated:      "План создан с %d этапами",
		urlMissing:       "URL не найден в запросе",
		savedFrom:        "Сохранено с %s",
		source:           "Источник: %s\n\n%s",
		contentSaved:     "Контент с %s сохранен",
		reminderTitle:    "Напоминание: %s",
		reminderDefault:  "Событие",
		eventDefault:     "Напоминание",
		reminderBody:     "Время: %s\nОписание: %s\nКалендарь ID: %s",
		reminderCreated:  "Напоминание создано в календаре",
		reminderNoCal:    "Напоминание сохранено в заметке, календарь не подключен",
		eventCreated:     "Событие создано в календаре",
		summaryTitle:     "Сводка: %s",
		summaryDefault:   "Поиск",
		summaryHeader:    "Запрос: %s\nНайдено заметок: %d",
		summaryUngrouped: "Остальные заметки",
		found:            "Найдено и организовано %d заметок",
		answerTitle:      "Ответ: %s",
		answerDefault:    "Вопрос",
		answerBody:       "Вопрос: %s\n\nОтвет: %s",
		answerSaved:      "Ответ сохранен в заметке",
		failed:           "Произошла ошибка при обработке запроса",
		emptyRequest:     "Пустой запрос",
	},
	heuristics.LangEN: {
		noteCreated:      "Note '%s' created and analyzed",
		planTitle:        "Plan: %s",
		planDefault:      "Learning/Project",
		stepTitle:        "Step %d: %s",
		planCreated:      "Plan created with %d steps",
		urlMissing:       "URL not found in request",
		savedFrom:        "Saved from %s",
		source:           "Source: %s\n\n%s",
		contentSaved:     "Content from %s saved",
		reminderTitle:    "Reminder: %s",
		reminderDefault:  "Event",
		eventDefault:     "Reminder",
		reminderBody:     "Time: %s\nDescription: %s\nCalendar ID: %s",
		reminderCreated:  "Reminder created in calendar",
		reminderNoCal:    "Reminder saved as a note, calendar is not connected",
		eventCreated:     "Event created in calendar",
		summaryTitle:     "Summary: %s",
		summaryDefault:   "Search",
		summaryHeader:    "Query: %s\nNotes found: %d",
		summaryUngrouped: "Other notes",
		found:            "Found and organized %d notes",
		answerTitle:      "Answer: %s",
		answerDefault:    "Question",
		answerBody:       "Question: %s\n\nAnswer: %s",
		answerSaved:      "Answer saved in note",
		failed:           "An error occurred while processing the request",
		emptyRequest:     "Empty request",
	},
}

func msgs(lang string) messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[heuristics.LangEN]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
