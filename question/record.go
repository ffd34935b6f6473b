package question

import (
	"regexp"
	"strconv"
	"strings"
)

// TypeObjective is the only question type this parser produces.
const TypeObjective = "objective"

// Record is one extracted multiple-choice question, ready for serialization.
type Record struct {
	QuestionType string   `json:"question_type"`
	Number       int      `json:"number"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	OptionCount  int      `json:"option_count"`
	Answer       int      `json:"answer"` // 1-based; 0 when unresolved
	Category     string   `json:"category"`
	Difficulty   string   `json:"difficulty"`
	Score        int      `json:"score"`
	Tags         string   `json:"tags"`
	Explanation  string   `json:"explanation"`
	NeedsReview  bool     `json:"needs_review,omitempty"`
}

// Defaults holds the metadata applied to every record unless the block
// carries its own.
type Defaults struct {
	Category   string `json:"category" yaml:"category"`
	Difficulty string `json:"difficulty" yaml:"difficulty"`
	Score      int    `json:"score" yaml:"score"`
	Tags       string `json:"tags" yaml:"tags"`
}

// StandardDefaults returns the question-bank import defaults.
func StandardDefaults() Defaults {
	return Defaults{
		Category:   "Aptitude",
		Difficulty: "medium",
		Score:      5,
		Tags:       "Aptitude,Numbers",
	}
}

// withFallback fills empty fields of d from fb.
func (d Defaults) withFallback(fb Defaults) Defaults {
	if d.Category == "" {
		d.Category = fb.Category
	}
	if d.Difficulty == "" {
		d.Difficulty = fb.Difficulty
	}
	if d.Score == 0 {
		d.Score = fb.Score
	}
	if d.Tags == "" {
		d.Tags = fb.Tags
	}
	return d
}

// blockMeta is metadata declared inside a block's residual text.
type blockMeta struct {
	category   string
	difficulty string
	score      int
	tags       string
}

var metaLineRe = regexp.MustCompile(`(?i)^\s*(?:\*\*|__)?\s*(category|difficulty|level|score|marks|tags)\s*(?:\*\*|__)?\s*:\s*(?:\*\*|__)?\s*(.*?)\s*(?:\*\*|__)?\s*$`)

// extractMeta pulls metadata lines out of the residual and returns the
// residual without them.
func extractMeta(residual string) (blockMeta, string) {
	var meta blockMeta
	if residual == "" {
		return meta, residual
	}
	lines := strings.Split(residual, "\n")
	kept := lines[:0]
	for _, line := range lines {
		m := metaLineRe.FindStringSubmatch(line)
		if m == nil || m[2] == "" {
			kept = append(kept, line)
			continue
		}
		switch strings.ToLower(m[1]) {
		case "category":
			meta.category = m[2]
		case "difficulty", "level":
			meta.difficulty = strings.ToLower(m[2])
		case "score", "marks":
			n, err := strconv.Atoi(m[2])
			if err != nil || n <= 0 {
				kept = append(kept, line)
				continue
			}
			meta.score = n
		case "tags":
			meta.tags = m[2]
		}
	}
	return meta, strings.Join(kept, "\n")
}

// normalize builds the final record fields from the defaults and any
// block-level overrides.
func normalize(rec *Record, d Defaults, meta blockMeta) {
	rec.QuestionType = TypeObjective
	rec.OptionCount = len(rec.Options)
	rec.Category = d.Category
	rec.Difficulty = d.Difficulty
	rec.Score = d.Score
	rec.Tags = d.Tags
	if meta.category != "" {
		rec.Category = meta.category
	}
	if meta.difficulty != "" {
		rec.Difficulty = meta.difficulty
	}
	if meta.score != 0 {
		rec.Score = meta.score
	}
	if meta.tags != "" {
		rec.Tags = meta.tags
	}
}
