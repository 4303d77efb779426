package heuristics

import (
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/notegraph/internal/models"
)

// CategoryRule maps a category label to the substrings that vote for it.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
}

// ImportanceRules are the weighted keyword tiers used by the importance scorer.
type ImportanceRules struct {
	High            []string `yaml:"high"`
	Medium          []string `yaml:"medium"`
	Low             []string `yaml:"low"`
	LengthThreshold int      `yaml:"length_threshold"`
}

// SentimentRules are the polarity word lists.
type SentimentRules struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Rules is the complete keyword configuration of the analyzer.
// Categories are ordered: on equal scores the earlier category wins.
type Rules struct {
	Categories    []CategoryRule  `yaml:"categories"`
	Importance    ImportanceRules `yaml:"importance"`
	Sentiment     SentimentRules  `yaml:"sentiment"`
	StopWords     []string        `yaml:"stop_words"`
	TechTerms     []string        `yaml:"tech_terms"`
	EventKeywords []string        `yaml:"event_keywords"`
}

// Validate implements validation.Validatable.
func (r Rules) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Categories, validation.Required, validation.Each(validation.By(checkCategory))),
		validation.Field(&r.Importance),
	)
}

// Validate implements validation.Validatable.
func (r ImportanceRules) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LengthThreshold, validation.Min(0)),
	)
}

func checkCategory(v any) error {
	c, _ := v.(CategoryRule)
	if c.Name == "" {
		return fmt.Errorf("category name is required")
	}
	if c.Name == models.GeneralCategory {
		return fmt.Errorf("%q is reserved", models.GeneralCategory)
	}
	return nil
}

// CategoryNames returns the configured labels followed by the reserved General label.
func (r *Rules) CategoryNames() []string {
	out := make([]string, 0, len(r.Categories)+1)
	for _, c := range r.Categories {
		out = append(out, c.Name)
	}
	return append(out, models.GeneralCategory)
}

// DefaultRules returns the built-in Russian and English keyword tables.
func DefaultRules() *Rules {
	return &Rules{
		Categories: []CategoryRule{
			{Name: "Work", Triggers: []string{"работа", "проект", "задача", "встреча", "дедлайн", "work", "project", "task", "meeting", "deadline", "report"}},
			{Name: "Learning", Triggers: []string{"учеба", "курс", "книга", "изучить", "обучение", "лекция", "learn", "course", "book", "study", "lecture", "tutorial"}},
			{Name: "Personal", Triggers: []string{"личное", "семья", "друзья", "дом", "хобби", "family", "friends", "home", "hobby", "personal"}},
			{Name: "Finance", Triggers: []string{"деньги", "бюджет", "расход", "доход", "счет", "money", "budget", "expense", "income", "invoice", "salary"}},
			{Name: "Health", Triggers: []string{"здоровье", "врач", "лекарство", "спорт", "диета", "health", "doctor", "dentist", "medicine", "workout", "diet"}},
			{Name: "Ideas", Triggers: []string{"идея", "мысль", "концепция", "стартап", "idea", "concept", "startup", "brainstorm"}},
			{Name: "Travel", Triggers: []string{"путешествие", "поездка", "отпуск", "билет", "travel", "trip", "vacation", "flight", "ticket", "hotel"}},
			{Name: "Shopping", Triggers: []string{"купить", "покупка", "магазин", "заказ", "buy", "purchase", "shop", "order", "groceries"}},
		},
		Importance: ImportanceRules{
			High:            []string{"срочно", "важно", "критично", "дедлайн", "немедленно", "deadline", "asap", "urgent", "important", "critical"},
			Medium:          []string{"нужно", "необходимо", "следует", "планирую", "need to", "should", "must", "plan"},
			Low:             []string{"возможно", "может быть", "когда-нибудь", "maybe", "perhaps", "someday"},
			LengthThreshold: 500,
		},
		Sentiment: SentimentRules{
			Positive: []string{"хорошо", "отлично", "успех", "радость", "позитив", "удача", "достижение", "good", "great", "success", "happy", "excellent", "achievement"},
			Negative: []string{"плохо", "ошибка", "проблема", "неудача", "грусть", "сложно", "трудно", "bad", "error", "problem", "failure", "sad", "difficult"},
		},
		StopWords: []string{
			"и", "в", "на", "с", "по", "для", "от", "до", "из", "к", "у", "о", "а", "но", "что", "как", "это", "то", "же", "бы", "не", "или", "да", "нет",
			"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "was", "our", "out", "has", "have", "this", "that", "with", "from", "about", "into", "there", "their", "they", "what", "when", "will", "would",
		},
		TechTerms: []string{"python", "golang", "javascript", "react", "api", "database", "sql", "docker", "kubernetes", "ai", "ml"},
		EventKeywords: []string{
			"встреча", "собрание", "конференция", "презентация", "интервью",
			"звонок", "разговор", "обсуждение", "планерка", "созвон",
			"напомни", "напоминание", "не забыть", "дедлайн", "срок",
			"мероприятие", "событие", "день рождения", "праздник",
			"врач", "доктор", "прием", "визит", "поход", "поездка",
			"meeting", "conference", "presentation", "interview", "call", "remind", "reminder",
			"don't forget", "deadline", "event", "birthday", "appointment", "doctor", "dentist", "visit", "trip",
		},
	}
}

// LoadRules reads a YAML rule file. Sections missing from the file keep
// their built-in defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("heuristics: read rules: %w", err)
	}
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("heuristics: parse rules: %w", err)
	}
	r := DefaultRules()
	if len(file.Categories) > 0 {
		r.Categories = file.Categories
	}
	if len(file.Importance.High)+len(file.Importance.Medium)+len(file.Importance.Low) > 0 {
		r.Importance.High, r.Importance.Medium, r.Importance.Low = file.Importance.High, file.Importance.Medium, file.Importance.Low
	}
	if file.Importance.LengthThreshold > 0 {
		r.Importance.LengthThreshold = file.Importance.LengthThreshold
	}
	if len(file.Sentiment.Positive) > 0 {
		r.Sentiment.Positive = file.Sentiment.Positive
	}
	if len(file.Sentiment.Negative) > 0 {
		r.Sentiment.Negative = file.Sentiment.Negative
	}
	if len(file.StopWords) > 0 {
		r.StopWords = file.StopWords
	}
	if len(file.TechTerms) > 0 {
		r.TechTerms = file.TechTerms
	}
	if len(file.EventKeywords) > 0 {
		r.EventKeywords = file.EventKeywords
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("heuristics: invalid rules: %w", err)
	}
	return r, nil
}
