// Package report defines the Writer interface for narrative report backends.
//
// A report writer wraps a remote or local language-model API (e.g., OpenAI
// GPT-4o, Anthropic Claude, or a local Ollama instance) and turns a finished
// lesson score into free-form narrative feedback for the teacher. The
// narrative is strictly optional enrichment: a lesson analysis is complete and
// valid whether or not a report could be produced.
//
// Implementors must be safe for concurrent use.
package report

import (
	"context"
	"fmt"
	"strings"
)

// CategorySummary is the per-category slice of a score handed to the writer.
type CategorySummary struct {
	// Name is the category identifier (e.g., "posture", "speech").
	Name string

	// Score and MaxScore are the achieved and maximum category points.
	Score    int
	MaxScore int

	// Issues names the threshold breaches detected for this category.
	Issues []string
}

// Request carries everything the writer needs to produce a narrative.
type Request struct {
	// Language is the language the narrative should be written in,
	// defaulting to English when empty.
	Language string

	// TotalScore, Percentage, and Grade summarise the overall result.
	TotalScore int
	Percentage float64
	Grade      string

	// Categories holds the five category summaries in display order.
	Categories []CategorySummary

	// Strengths and PriorityAreas are the rule-based highlight lists.
	Strengths     []string
	PriorityAreas []string

	// TranscriptExcerpt is an optional snippet of the lesson transcript to
	// ground the narrative in what was actually said.
	TranscriptExcerpt string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Report is the narrative produced by a writer.
type Report struct {
	// Narrative is the free-form feedback text.
	Narrative string

	// Model names the backend model that produced it.
	Model string

	// Usage contains token accounting for the generation.
	Usage Usage
}

// Writer is the abstraction over any narrative report backend.
//
// WriteReport must propagate context cancellation promptly. A failed write is
// never fatal to the caller: analyses proceed without the narrative.
type Writer interface {
	WriteReport(ctx context.Context, req Request) (*Report, error)
}

// Prompt renders the shared system and user prompts for req. All backends
// use the same prompt so that narratives stay comparable across providers.
func Prompt(req Request) (system, user string) {
	lang := req.Language
	if lang == "" {
		lang = "English"
	}
	system = fmt.Sprintf(
		"You are an experienced pedagogical coach reviewing a recorded lesson. "+
			"Write constructive, specific feedback for the teacher in %s. "+
			"Ground every observation in the measurements provided; do not invent events. "+
			"Keep the tone encouraging and the advice actionable.", lang)

	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %d/1000 (%.1f%%, grade %s)\n\nCategories:\n",
		req.TotalScore, req.Percentage, req.Grade)
	for _, c := range req.Categories {
		fmt.Fprintf(&b, "- %s: %d/%d", c.Name, c.Score, c.MaxScore)
		if len(c.Issues) > 0 {
			fmt.Fprintf(&b, " (issues: %s)", strings.Join(c.Issues, "; "))
		}
		b.WriteString("\n")
	}
	if len(req.Strengths) > 0 {
		fmt.Fprintf(&b, "\nStrengths:\n- %s\n", strings.Join(req.Strengths, "\n- "))
	}
	if len(req.PriorityAreas) > 0 {
		fmt.Fprintf(&b, "\nPriority areas, most urgent first:\n- %s\n", strings.Join(req.PriorityAreas, "\n- "))
	}
	if req.TranscriptExcerpt != "" {
		fmt.Fprintf(&b, "\nTranscript excerpt:\n%s\n", req.TranscriptExcerpt)
	}
	b.WriteString("\nWrite the feedback report now.")
	return system, b.String()
}
