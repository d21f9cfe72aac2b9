package prompt

import (
	"fmt"
	"strings"
)

const Product = "FullTask AI Tutor"

var System = `You are %s (version %s). Subject: %s. Tone: %s. If asked who created you, reply: "%s from %s". Provide step-by-step explanations and examples.`

var Attribution = `%s from %s. (%s %s)`

const (
	deepSuffix    = "\n\nPlease answer step-by-step."
	conciseSuffix = "\n\nBe concise."
)

var Quiz = `Create %d multiple choice questions with %s difficulty about "%s".
Each question must have exactly 4 options labelled A to D.
Respond only with a JSON array using this schema:
[{"question": "text", "options": ["A) ...", "B) ...", "C) ...", "D) ..."], "answer": "A", "explanation": "short explanation"}]`

var Flashcards = `Generate %d flashcards for the topic "%s".
Respond only with a JSON array using this schema:
[{"front": "term or question", "back": "definition or answer"}]`

var Summary = `Summarize the following text in a %s form. Keep the key ideas and definitions.

%s`

var Translate = `Translate the following text to %s. Respond only with the translation.

%s`

var GradeEssay = `Grade the following essay using this rubric: %s.
Respond only with a JSON object using this schema:
{"score": 0-100, "feedback": "overall feedback", "strengths": ["..."], "improvements": ["..."]}

Essay:
%s`

var Reference = `Format the following source as a %s style reference. Respond only with the formatted reference.

%s`

var Hint = `Give a single hint that helps a student make progress on the following problem without revealing the final answer.

%s`

var Resources = `Recommend 5 learning resources about "%s" for a %s level student.
For each resource give its title, type (book, course, video, article or website) and one sentence on why it helps.`

var Document = `Summarize the following document:

%s`

// DocumentLimit is the number of characters of an uploaded document sent for summarization.
const DocumentLimit = 15000

// Builder creates the prompts of the tutor.
type Builder struct {
	Version  string
	Owner    string
	Location string
}

// SystemPrompt returns the instruction for chat-like requests.
func (b *Builder) SystemPrompt(subject, tone string) string {
	if subject == "" {
		subject = "General"
	}
	if tone == "" {
		tone = "teaching"
	}
	return fmt.Sprintf(System, Product, b.Version, subject, tone, b.Owner, b.Location)
}

// UserContent appends the mode instruction to the user message.
func (b *Builder) UserContent(message, mode string) string {
	if mode == "deep" {
		return message + deepSuffix
	}
	return message + conciseSuffix
}

// Attribution returns the canned reply for questions about the creator.
func (b *Builder) Attribution() string {
	return fmt.Sprintf(Attribution, b.Owner, b.Location, Product, b.Version)
}

// Template is a system and user prompt pair for a single-shot request.
type Template struct {
	System string
	User   string
}

func (b *Builder) Quiz(topic string, count int, difficulty string) Template {
	if count <= 0 {
		count = 5
	}
	if difficulty == "" {
		difficulty = "medium"
	}
	return Template{
		System: "You are a helpful quiz generator.",
		User:   fmt.Sprintf(Quiz, count, difficulty, topic),
	}
}

func (b *Builder) Flashcards(topic string, count int) Template {
	if count <= 0 {
		count = 10
	}
	return Template{
		System: "You are a helpful flashcard generator.",
		User:   fmt.Sprintf(Flashcards, count, topic),
	}
}

func (b *Builder) Summary(text, length string) Template {
	if length == "" {
		length = "short"
	}
	return Template{
		System: "You are a concise study summarizer.",
		User:   fmt.Sprintf(Summary, length, text),
	}
}

func (b *Builder) Translate(text, target string) Template {
	return Template{
		System: "You are a precise translator.",
		User:   fmt.Sprintf(Translate, target, text),
	}
}

func (b *Builder) GradeEssay(essay, rubric string) Template {
	if rubric == "" {
		rubric = "clarity, structure, argument and grammar"
	}
	return Template{
		System: "You are a fair and encouraging essay grader.",
		User:   fmt.Sprintf(GradeEssay, rubric, essay),
	}
}

func (b *Builder) Reference(source, style string) Template {
	if style == "" {
		style = "APA"
	}
	return Template{
		System: "You are an academic citation assistant.",
		User:   fmt.Sprintf(Reference, style, source),
	}
}

func (b *Builder) Hint(problem string) Template {
	return Template{
		System: b.SystemPrompt("General", "encouraging"),
		User:   fmt.Sprintf(Hint, problem),
	}
}

func (b *Builder) Resources(topic, level string) Template {
	if level == "" {
		level = "beginner"
	}
	return Template{
		System: "You are a helpful study advisor.",
		User:   fmt.Sprintf(Resources, topic, level),
	}
}

// Document builds the upload summarization prompt, cutting the text to DocumentLimit characters.
func (b *Builder) Document(text string) Template {
	if r := []rune(text); len(r) > DocumentLimit {
		text = string(r[:DocumentLimit])
	}
	return Template{
		System: b.SystemPrompt("PDFParser", ""),
		User:   fmt.Sprintf(Document, text),
	}
}

var denylist = []string{"bomb", "terrorist", "kill", "harm", "attack"}

// Unsafe reports whether the message contains a denied word. It is a
// courtesy filter, not a security boundary.
func Unsafe(message string) bool {
	low := strings.ToLower(message)
	for _, d := range denylist {
		if strings.Contains(low, d) {
			return true
		}
	}
	return false
}

var attributionQuestions = []string{"who created you", "who made you", "who built you"}

// IsAttribution reports whether the message asks who created the tutor.
func IsAttribution(message string) bool {
	low := strings.ToLower(message)
	for _, q := range attributionQuestions {
		if strings.Contains(low, q) {
			return true
		}
	}
	return false
}
