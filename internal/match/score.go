package match

import (
	"github.com/hbollon/go-edlib"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/pkg/relname"
)

// ScoreEngine computes weighted similarity between parsed file
// attributes and wanted items. Scores are in [0, 1].
type ScoreEngine struct {
	weights config.Weights
}

// NewScoreEngine creates a score engine with the given field weights.
func NewScoreEngine(weights config.Weights) *ScoreEngine {
	return &ScoreEngine{weights: weights}
}

// Score weighs the parsed attributes against a wanted item. The total
// is normalized by the weights of the fields the item actually
// carries, so a movie with no episode number is not penalized for it.
// The second return is the similarity on the highest-weighted present
// field, used as a deterministic tie-break.
func (e *ScoreEngine) Score(info *relname.Info, libType library.Type, w *library.WantedItem) (float64, float64) {
	type field struct {
		weight  float64
		sim     float64
		present bool
	}

	name := field{
		weight:  e.weights.Name,
		sim:     textSimilarity(info.CleanName, relname.Clean(w.Name)),
		present: w.Name != "",
	}
	title := field{
		weight:  e.weights.Title,
		sim:     textSimilarity(relname.Clean(info.Title), relname.Clean(w.Title)),
		present: w.Title != "",
	}

	wantNumber, haveNumber := w.Episode, info.Episode()
	if libType == library.TypeMusic || libType == library.TypeAudiobook {
		wantNumber, haveNumber = w.Track, info.Track
	}
	number := field{
		weight:  e.weights.Number,
		sim:     exactMatch(haveNumber, wantNumber),
		present: wantNumber > 0,
	}
	season := field{
		weight:  e.weights.Season,
		sim:     exactMatch(info.Season, w.Season),
		present: libType == library.TypeTV && w.Season > 0,
	}
	year := field{
		weight:  e.weights.Year,
		sim:     exactMatch(info.Year, w.Year),
		present: w.Year > 0,
	}

	var sum, totalWeight float64
	topSim := -1.0
	topWeight := -1.0
	for _, f := range []field{name, title, number, season, year} {
		if !f.present || f.weight <= 0 {
			continue
		}
		sum += f.weight * f.sim
		totalWeight += f.weight
		if f.weight > topWeight {
			topWeight = f.weight
			topSim = f.sim
		}
	}
	if totalWeight == 0 {
		return 0, 0
	}
	return sum / totalWeight, topSim
}

// textSimilarity is normalized Levenshtein similarity on cleaned text.
func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil {
		return 0
	}
	return float64(sim)
}

func exactMatch(a, b int) float64 {
	if a == b {
		return 1
	}
	return 0
}
