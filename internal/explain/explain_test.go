package explain

import (
	"testing"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

func TestSplit(t *testing.T) {
	t.Run("HeadlineAndFootnote", func(t *testing.T) {
		h, f := Split("Reason text\n\nFootnote text")
		if h != "Reason text" {
			t.Errorf("expected headline 'Reason text', got '%s'", h)
		}
		if f != "Footnote text" {
			t.Errorf("expected footnote 'Footnote text', got '%s'", f)
		}
	})

	t.Run("NoBlankLine", func(t *testing.T) {
		h, f := Split("Only reason")
		if h != "Only reason" {
			t.Errorf("expected headline 'Only reason', got '%s'", h)
		}
		if f != "" {
			t.Errorf("expected empty footnote, got '%s'", f)
		}
	})

	t.Run("SingleNewlineIsNotABoundary", func(t *testing.T) {
		h, f := Split("line one\nline two")
		if h != "line one\nline two" || f != "" {
			t.Errorf("unexpected split: %q / %q", h, f)
		}
	})

	t.Run("OnlySecondSegmentIsFootnote", func(t *testing.T) {
		h, f := Split("a\n\nb\n\nc")
		if h != "a" || f != "b" {
			t.Errorf("unexpected split: %q / %q", h, f)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		h, f := Split("")
		if h != "" || f != "" {
			t.Errorf("expected empty parts, got %q / %q", h, f)
		}
	})

	t.Run("LeadingBlankLine", func(t *testing.T) {
		h, f := Split("\n\nfootnote only")
		if h != "" || f != "footnote only" {
			t.Errorf("unexpected split: %q / %q", h, f)
		}
	})
}

func TestRender(t *testing.T) {
	t.Run("FeaturesKeepOrder", func(t *testing.T) {
		exp := &domain.Explanation{
			Text: "Montant élevé.\n\n*Audit LLM : v.llama | Score: 0.91*",
			TopFeatures: []domain.FeatureImportance{
				{Feature: "V14", Value: -0.2},
				{Feature: "V4", Value: 0.9},
				{Feature: "Amount", Value: 0.1},
			},
		}

		r := Render(exp)

		if r.Headline != "Montant élevé." {
			t.Errorf("unexpected headline: %q", r.Headline)
		}
		if r.Footnote != "*Audit LLM : v.llama | Score: 0.91*" {
			t.Errorf("unexpected footnote: %q", r.Footnote)
		}
		want := []string{"V14", "V4", "Amount"}
		for i, f := range r.Features {
			if f.Feature != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], f.Feature)
			}
		}
	})

	t.Run("DoesNotAliasInput", func(t *testing.T) {
		exp := &domain.Explanation{TopFeatures: []domain.FeatureImportance{{Feature: "V1", Value: 1}}}
		r := Render(exp)
		r.Features[0].Value = 42
		if exp.TopFeatures[0].Value != 1 {
			t.Error("render must not mutate the explanation")
		}
	})

	t.Run("Nil", func(t *testing.T) {
		r := Render(nil)
		if r.Headline != "" || r.Footnote != "" || len(r.Features) != 0 {
			t.Errorf("expected empty render, got %+v", r)
		}
	})
}
