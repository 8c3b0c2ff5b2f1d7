package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hazylabs/cartridges/internal/config"
)

// FromConfig builds the named dataset using the configured paths.
func FromConfig(name string, cfg *config.Config) (Dataset, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dataset: nil config")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mmlu":
		return &MMLU{
			Path:        cfg.Datasets.MMLU.Path,
			NumProblems: cfg.Datasets.MMLU.NumProblems,
			Seed:        cfg.Datasets.MMLU.Seed,
		}, nil
	case "qasper":
		return &Qasper{Path: cfg.Datasets.Qasper.Path}, nil
	case "mtob-ek":
		return &MTOB{Dir: cfg.Datasets.MTOB.Dir, Direction: EnglishToKalamang, UseCoT: cfg.Datasets.MTOB.UseCoT}, nil
	case "mtob-ke":
		return &MTOB{Dir: cfg.Datasets.MTOB.Dir, Direction: KalamangToEnglish, UseCoT: cfg.Datasets.MTOB.UseCoT}, nil
	case "mtob-ek-train":
		return &MTOB{Dir: cfg.Datasets.MTOB.Dir, Direction: EnglishToKalamang, Split: "train", UseCoT: cfg.Datasets.MTOB.UseCoT}, nil
	case "mtob-ke-train":
		return &MTOB{Dir: cfg.Datasets.MTOB.Dir, Direction: KalamangToEnglish, Split: "train", UseCoT: cfg.Datasets.MTOB.UseCoT}, nil
	default:
		return nil, fmt.Errorf("dataset: unknown dataset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the registered dataset names.
func Names() []string {
	names := []string{
		"mmlu",
		"qasper",
		"mtob-ek",
		"mtob-ke",
		"mtob-ek-train",
		"mtob-ke-train",
	}
	sort.Strings(names)
	return names
}
