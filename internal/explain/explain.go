// Package explain renders explanation payloads from the scoring service.
//
// The explanation text is free-form model output: a rationale, optionally
// followed by a blank line and an audit footnote. Parsing is best effort and
// never fails; text without a blank line is all headline.
package explain

import (
	"strings"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

// Separator between the rationale and the footnote.
const Separator = "\n\n"

// Split returns the text before the first blank line as the headline and
// the segment after it, up to the next blank line, as the footnote.
func Split(text string) (headline, footnote string) {
	parts := strings.Split(text, Separator)
	headline = parts[0]
	if len(parts) > 1 {
		footnote = parts[1]
	}
	return headline, footnote
}

// Render splits the text and passes the feature ranking through in the
// order the scoring service gave it.
func Render(exp *domain.Explanation) domain.RenderedExplanation {
	if exp == nil {
		return domain.RenderedExplanation{Features: []domain.FeatureImportance{}}
	}

	headline, footnote := Split(exp.Text)

	features := make([]domain.FeatureImportance, len(exp.TopFeatures))
	copy(features, exp.TopFeatures)

	return domain.RenderedExplanation{
		Headline: headline,
		Footnote: footnote,
		Features: features,
	}
}
