package domain

import (
	"math"
	"slices"
)

// ScoreTolerance is the absolute difference below which two scores are
// considered equal.
const ScoreTolerance = 0.001

// TiebreakMethod names one level of the winner resolution cascade.
type TiebreakMethod string

// Cascade levels in the order they are applied.
const (
	MethodAverageScore   TiebreakMethod = "average_score"
	MethodMaxScore       TiebreakMethod = "max_score"
	MethodLowestVariance TiebreakMethod = "lowest_variance"
	MethodHeadToHead     TiebreakMethod = "head_to_head"
	MethodAlphabetical   TiebreakMethod = "alphabetical_fallback"
)

// TiebreakRecord explains how the winner of a run was chosen.
type TiebreakRecord struct {
	Method      TiebreakMethod `json:"method" yaml:"method"`
	TieOccurred bool           `json:"tie_occurred" yaml:"tie_occurred"`
	// TiedModels is the set tied on average score, before any narrowing.
	TiedModels []string         `json:"tied_models" yaml:"tied_models"`
	LevelsUsed []TiebreakMethod `json:"tiebreaker_levels_used" yaml:"tiebreaker_levels_used"`
	// RemainingTied is set only when the alphabetical fallback decided.
	RemainingTied []string `json:"remaining_tied,omitempty" yaml:"remaining_tied,omitempty"`
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < ScoreTolerance }

// AverageScores computes each candidate's unweighted mean score across every
// judge in the matrix. A judge without an entry for a candidate contributes
// 0.0; a matrix with no judges yields 0.0 for everyone.
func AverageScores(matrix RatingMatrix, candidates []string) map[string]float64 {
	judges := matrix.Judges()
	averages := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if len(judges) == 0 {
			averages[c] = 0.0
			continue
		}
		var sum float64
		for _, j := range judges {
			sum += matrix.Score(j, c)
		}
		averages[c] = sum / float64(len(judges))
	}
	return averages
}

// ResolveWinner picks a single winner from the average scores, breaking ties
// by highest single score, lowest sample variance, head-to-head judge wins
// and finally lexical order of the candidate key. Only the candidates tied on
// average score are ever considered by later levels.
//
// candidates fixes the order of tied_models; keys of averages missing from it
// are appended in lexical order. The same inputs always yield the same record.
func ResolveWinner(
	averages map[string]float64,
	matrix RatingMatrix,
	candidates []string,
) (string, TiebreakRecord, error) {
	if len(averages) == 0 {
		return "", TiebreakRecord{}, ErrEmptyRoster
	}

	record := TiebreakRecord{
		Method:     MethodAverageScore,
		TiedModels: []string{},
		LevelsUsed: []TiebreakMethod{},
	}

	tied := keepHighest(resolutionOrder(averages, candidates), func(c string) float64 {
		return averages[c]
	})
	if len(tied) == 1 {
		return tied[0], record, nil
	}

	record.TieOccurred = true
	record.TiedModels = slices.Clone(tied)
	record.LevelsUsed = append(record.LevelsUsed, MethodAverageScore)

	judges := matrix.Judges()
	levels := []struct {
		method TiebreakMethod
		narrow func([]string) []string
	}{
		{MethodMaxScore, func(set []string) []string {
			return keepHighest(set, func(c string) float64 {
				return maxScore(judgeScores(matrix, judges, c))
			})
		}},
		{MethodLowestVariance, func(set []string) []string {
			return keepLowest(set, func(c string) float64 {
				return sampleVariance(judgeScores(matrix, judges, c))
			})
		}},
		{MethodHeadToHead, func(set []string) []string {
			points := headToHeadPoints(matrix, judges, set)
			return keepHighest(set, func(c string) float64 { return points[c] })
		}},
	}

	for _, level := range levels {
		tied = level.narrow(tied)
		record.LevelsUsed = append(record.LevelsUsed, level.method)
		if len(tied) == 1 {
			record.Method = level.method
			return tied[0], record, nil
		}
	}

	remaining := slices.Clone(tied)
	slices.Sort(remaining)
	record.Method = MethodAlphabetical
	record.RemainingTied = remaining
	return remaining[0], record, nil
}

// resolutionOrder lists the keys of averages, honouring the caller's order.
func resolutionOrder(averages map[string]float64, candidates []string) []string {
	order := make([]string, 0, len(averages))
	seen := make(map[string]bool, len(averages))
	for _, c := range candidates {
		if _, ok := averages[c]; ok && !seen[c] {
			order = append(order, c)
			seen[c] = true
		}
	}

	var rest []string
	for c := range averages {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}

func keepHighest(set []string, value func(string) float64) []string {
	best := math.Inf(-1)
	for _, c := range set {
		best = math.Max(best, value(c))
	}
	return keepNear(set, value, best)
}

func keepLowest(set []string, value func(string) float64) []string {
	best := math.Inf(1)
	for _, c := range set {
		best = math.Min(best, value(c))
	}
	return keepNear(set, value, best)
}

func keepNear(set []string, value func(string) float64, target float64) []string {
	kept := make([]string, 0, len(set))
	for _, c := range set {
		if approxEqual(value(c), target) {
			kept = append(kept, c)
		}
	}
	return kept
}

func judgeScores(matrix RatingMatrix, judges []string, candidate string) []float64 {
	scores := make([]float64, len(judges))
	for i, j := range judges {
		scores[i] = matrix.Score(j, candidate)
	}
	return scores
}

func maxScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	return slices.Max(scores)
}

// sampleVariance uses the n-1 denominator; fewer than two scores give 0.
func sampleVariance(scores []float64) float64 {
	if len(scores) < 2 {
		return 0.0
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var ss float64
	for _, s := range scores {
		ss += (s - mean) * (s - mean)
	}
	return ss / float64(len(scores)-1)
}

// headToHeadPoints awards each judge's point to the tied candidates it scored
// highest, split evenly when the judge itself is tied.
func headToHeadPoints(matrix RatingMatrix, judges []string, tied []string) map[string]float64 {
	points := make(map[string]float64, len(tied))
	for _, c := range tied {
		points[c] = 0
	}
	for _, j := range judges {
		winners := keepHighest(tied, func(c string) float64 { return matrix.Score(j, c) })
		share := 1.0 / float64(len(winners))
		for _, c := range winners {
			points[c] += share
		}
	}
	return points
}
