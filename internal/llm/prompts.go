package llm

import (
	"fmt"
	"strings"
	"time"
)

// Input bounds per aspect, in runes.
const (
	limitSummary     = 1000
	limitCategorize  = 800
	limitActions     = 800
	limitTags        = 600
	limitTopics      = 600
	limitKeywords    = 600
	limitSentiment   = 500
	limitConnections = 500
	limitCandidate   = 300
	limitTitle       = 300
	limitLanguage    = 300
	limitRequest     = 1000
	limitPlan        = 2000
)

const (
	tempClassify = 0.1
	tempExtract  = 0.3
	tempGenerate = 0.7
)

const sameLanguage = "Always answer in the same language as the input text."

const systemAnalyst = "You are an assistant that analyzes personal notes. Follow the requested output format exactly. " + sameLanguage

func promptCategorize(content string, categories []string) string {
	return fmt.Sprintf(`Pick the single best category for the note below.
Allowed categories: %s.
Answer with the category name only, exactly as written in the list.

Note:
%s`, strings.Join(categories, ", "), clip(content, limitCategorize))
}

func promptImportance(content string) string {
	return fmt.Sprintf(`Rate how important this note is for its author on a scale from 1 (trivial) to 10 (critical).
Consider deadlines, urgency words, obligations and consequences.
Answer with a single integer only.

Note:
%s`, clip(content, limitCategorize))
}

func promptSummary(content string) string {
	return fmt.Sprintf(`Summarize the note in one or two sentences (at most 200 characters).
Answer with the summary only.

Note:
%s`, clip(content, limitSummary))
}

func promptTags(content string) string {
	return fmt.Sprintf(`Suggest up to 7 short tags (one or two words each) for the note.
Answer with a JSON array of strings only, e.g. ["tag1", "tag2"].

Note:
%s`, clip(content, limitTags))
}

func promptTopics(content string) string {
	return fmt.Sprintf(`List the main topics of the note, at most 5.
Answer with a JSON array of strings only.

Note:
%s`, clip(content, limitTopics))
}

func promptKeywords(content string) string {
	return fmt.Sprintf(`Extract up to 10 keywords from the note.
Answer with a JSON array of strings only.

Note:
%s`, clip(content, limitKeywords))
}

func promptSentiment(content string) string {
	return fmt.Sprintf(`Classify the sentiment of the note as positive, negative or neutral.
Answer with a JSON object only: {"sentiment": "positive|negative|neutral", "confidence": 0.0-1.0}

Note:
%s`, clip(content, limitSentiment))
}

func promptActionItems(content string) string {
	return fmt.Sprintf(`Extract the concrete tasks and action items from the note, at most 10.
Answer with a JSON array of strings only. Answer [] if there are none.

Note:
%s`, clip(content, limitActions))
}

func promptConnections(content string, candidates []NoteRef) string {
	var b strings.Builder
	for _, n := range candidates {
		fmt.Fprintf(&b, "- id %d: %s: %s\n", n.ID, n.Title, clip(n.Content, limitCandidate))
	}
	return fmt.Sprintf(`Find which existing notes are meaningfully related to the new note.
Relation must be one of RELATED, SIMILAR, FOLLOW_UP, PREREQUISITE, CONTRAST.
Answer with a JSON array only: [{"note_id": 1, "relation": "RELATED", "reason": "..."}]. Answer [] if none.

New note:
%s

Existing notes:
%s`, clip(content, limitConnections), b.String())
}

func promptOrganize(notes []NoteRef) string {
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "- id %d [%s]: %s: %s\n", n.ID, n.Category, n.Title, clip(n.Content, limitCandidate))
	}
	return fmt.Sprintf(`Group the notes below into thematic groups. Every group needs at least two notes.
Answer with a JSON array only: [{"name": "...", "description": "...", "note_ids": [1, 2]}].

Notes:
%s`, b.String())
}

func promptTitle(content string) string {
	return fmt.Sprintf(`Write a short title (at most 8 words) for the note.
Answer with the title only, without quotes.

Note:
%s`, clip(content, limitTitle))
}

func promptLanguage(content string) string {
	return fmt.Sprintf(`Detect the language of the text. Answer with the ISO 639-1 code only (for example ru or en).

Text:
%s`, clip(content, limitLanguage))
}

func promptIntent(request string) string {
	return fmt.Sprintf(`Classify the user's request into exactly one intent:
- create_note: the user wants a note written about something
- create_plan: the user wants a step by step plan
- save_link: the user wants a web page saved (the request contains a URL)
- reminder: the user wants to be reminded or wants a calendar event
- search: the user wants to find existing notes
- general: any other question

Answer with a JSON object only:
{"intent": "...", "title": "...", "category": "...", "description": "...", "url": "...", "search_query": "...", "reminder_time": "...", "language": "ru|en"}
Leave fields that do not apply empty.

Request:
%s`, clip(request, limitRequest))
}

func promptComposeNote(request string) string {
	return fmt.Sprintf(`Write a well structured note that fulfils the request. Use short paragraphs or lists.
Answer with the note text only.

Request:
%s`, clip(request, limitRequest))
}

func promptComposePlan(request string) string {
	return fmt.Sprintf(`Write a practical step by step plan for the request. Number the steps.
Answer with the plan text only.

Request:
%s`, clip(request, limitRequest))
}

func promptPlanSteps(plan string) string {
	return fmt.Sprintf(`Extract the steps of the plan below.
Answer with a JSON array only: [{"title": "...", "description": "..."}].

Plan:
%s`, clip(plan, limitPlan))
}

func promptReminder(request string, now time.Time) string {
	return fmt.Sprintf(`Current local time is %s.
Extract when the reminder in the request should start and end. If no duration is given, the event lasts one hour.
Answer with a JSON object only: {"start": "YYYY-MM-DDTHH:MM:SS", "end": "YYYY-MM-DDTHH:MM:SS"}.

Request:
%s`, now.Format(time.RFC3339), clip(request, limitRequest))
}

func promptEvents(content string, now time.Time) string {
	return fmt.Sprintf(`Current local time is %s.
Find every meeting, event, appointment or deadline mentioned in the note.
Meetings usually last 1 to 2 hours, calls 30 to 60 minutes, deadlines are set to 18:00.
Answer with a JSON array only:
[{"title": "...", "description": "...", "start_time": "YYYY-MM-DDTHH:MM:SS", "end_time": "YYYY-MM-DDTHH:MM:SS", "location": "...", "is_all_day": false, "reminder_minutes": 30}]
Answer [] if there are no events.

Note:
%s`, now.Format(time.RFC3339), clip(content, limitSummary))
}

func promptAnswer(question string) string {
	return fmt.Sprintf(`Answer the question clearly and concisely.

Question:
%s`, clip(question, limitRequest))
}
