// Package validate provides pure structural validation and deterministic
// quality scoring for generated event records. Nothing here performs I/O:
// the score is the sole acceptance gate before persistence.
package validate

import (
	"fmt"
	"math"
	"unicode/utf8"

	"eventforge/internal/core"
)

// ValidationError describes a single structural problem with a record.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the structural invariants of a generated record and returns
// every violation found.
func Validate(rec core.EventRecord) []ValidationError {
	var errs []ValidationError

	if rec.Title == "" {
		errs = append(errs, ValidationError{"title", "must not be empty"})
	} else if utf8.RuneCountInString(rec.Title) > core.MaxTitleRunes {
		errs = append(errs, ValidationError{"title", fmt.Sprintf("must be at most %d characters", core.MaxTitleRunes)})
	}

	if rec.Description == "" {
		errs = append(errs, ValidationError{"description", "must not be empty"})
	} else if utf8.RuneCountInString(rec.Description) > core.MaxDescriptionRunes {
		errs = append(errs, ValidationError{"description", fmt.Sprintf("must be at most %d characters", core.MaxDescriptionRunes)})
	}

	if len(rec.Options) < core.MinOptions {
		errs = append(errs, ValidationError{"options", fmt.Sprintf("must have at least %d options", core.MinOptions)})
	}
	for i, opt := range rec.Options {
		field := fmt.Sprintf("options[%d]", i)
		if opt.Text == "" {
			errs = append(errs, ValidationError{field, "text must not be empty"})
		} else if utf8.RuneCountInString(opt.Text) > core.MaxOptionTextRunes {
			errs = append(errs, ValidationError{field, fmt.Sprintf("text must be at most %d characters", core.MaxOptionTextRunes)})
		}
		if len(opt.Effects) == 0 {
			errs = append(errs, ValidationError{field, "effects must not be empty"})
		}
		for name, v := range opt.Effects {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, ValidationError{field, fmt.Sprintf("effect %q is not a finite number", name)})
			}
		}
	}

	minIdx := core.RankIndex(rec.MinRank)
	maxIdx := core.RankIndex(rec.MaxRank)
	if minIdx < 0 {
		errs = append(errs, ValidationError{"min_rank", fmt.Sprintf("unknown rank tier %q", rec.MinRank)})
	}
	if maxIdx < 0 {
		errs = append(errs, ValidationError{"max_rank", fmt.Sprintf("unknown rank tier %q", rec.MaxRank)})
	}
	if minIdx >= 0 && maxIdx >= 0 && minIdx > maxIdx {
		errs = append(errs, ValidationError{"min_rank", "must not exceed max_rank"})
	}

	return errs
}

// Score bonus increments. The base plus all bonuses stays within [0,1];
// the clamp is a guard, not a balancing tool.
const (
	scoreBase              = 0.30
	bonusTitleIdeal        = 0.10
	bonusTitleAcceptable   = 0.05
	bonusDescIdeal         = 0.10
	bonusDescAcceptable    = 0.05
	bonusThreeOptions      = 0.15
	bonusTwoOptions        = 0.10
	bonusOptionTextLength  = 0.10
	bonusEffectsWellFormed = 0.10
	bonusNoErrors          = 0.10
)

// Score computes the deterministic quality heuristic in [0,1] for a record.
// Candidates below the configured threshold are discarded before persistence.
func Score(rec core.EventRecord) float64 {
	score := scoreBase

	titleLen := utf8.RuneCountInString(rec.Title)
	switch {
	case titleLen >= 4 && titleLen <= 8:
		score += bonusTitleIdeal
	case titleLen >= 1 && titleLen <= core.MaxTitleRunes:
		score += bonusTitleAcceptable
	}

	descLen := utf8.RuneCountInString(rec.Description)
	switch {
	case descLen >= 15 && descLen <= 40:
		score += bonusDescIdeal
	case descLen >= 1 && descLen <= core.MaxDescriptionRunes:
		score += bonusDescAcceptable
	}

	switch len(rec.Options) {
	case 3:
		score += bonusThreeOptions
	case 2:
		score += bonusTwoOptions
	}

	if n := len(rec.Options); n > 0 {
		total := 0
		for _, opt := range rec.Options {
			total += utf8.RuneCountInString(opt.Text)
		}
		avg := float64(total) / float64(n)
		if avg >= 4 && avg <= 12 {
			score += bonusOptionTextLength
		}
	}

	if len(rec.Options) > 0 && allEffectsWellFormed(rec.Options) {
		score += bonusEffectsWellFormed
	}

	if len(Validate(rec)) == 0 {
		score += bonusNoErrors
	}

	return math.Max(0.0, math.Min(1.0, score))
}

// allEffectsWellFormed reports whether every option carries a non-empty
// effects map of finite values with nonzero total absolute magnitude.
func allEffectsWellFormed(options []core.EventOption) bool {
	for _, opt := range options {
		if len(opt.Effects) == 0 {
			return false
		}
		magnitude := 0.0
		for _, v := range opt.Effects {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			magnitude += math.Abs(v)
		}
		if magnitude == 0 {
			return false
		}
	}
	return true
}
