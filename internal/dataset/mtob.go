package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hazylabs/cartridges/internal/metric"
)

// Translation directions for the MTOB (machine translation from one
// book) English/Kalamang dataset.
const (
	EnglishToKalamang = "ek"
	KalamangToEnglish = "ke"
)

const (
	mtobTestEKFile  = "test_examples_ek.json"
	mtobTestKEFile  = "test_examples_ke.json"
	mtobTrainFile   = "train_examples.json"
	mtobEndOfTurn   = "<|eot_id|>"
	defaultMTOBDir  = "data/mtob"
	mtobSplitsTest  = "test"
	mtobSplitsTrain = "train"
)

// MTOB adapts the English<->Kalamang translation benchmark. Test splits
// come from per-direction files of {original, ground_truth} pairs; the
// train split holds {original, translation} sentence pairs usable in
// either direction.
type MTOB struct {
	Dir       string
	Direction string // EnglishToKalamang or KalamangToEnglish
	Split     string // "test" or "train"
	UseCoT    bool
}

type mtobTestPair struct {
	Original    string `json:"original"`
	GroundTruth string `json:"ground_truth"`
}

type mtobTrainPair struct {
	Original    string `json:"original"`    // English
	Translation string `json:"translation"` // Kalamang
}

func (d *MTOB) Name() string {
	name := fmt.Sprintf("mtob-%s", d.direction())
	if d.split() == mtobSplitsTrain {
		name += "-train"
	}
	if d.UseCoT {
		name += "-cot"
	}
	return name
}

func (d *MTOB) Description() string {
	src, dst := d.languages()
	return fmt.Sprintf("MTOB %s to %s translation benchmark", src, dst)
}

func (d *MTOB) Load(ctx context.Context) ([]Element, error) {
	if ctx == nil {
		return nil, errors.New("mtob: nil context")
	}

	pairs, err := d.loadPairs()
	if err != nil {
		return nil, err
	}

	src, dst := d.languages()

	out := make([]Element, 0, len(pairs))
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var prompt string
		if d.UseCoT {
			prompt = PromptTranslationCoT(p.Original, src, dst)
		} else {
			prompt = PromptTranslationDirect(p.Original, src, dst)
		}

		out = append(out, Element{
			ID:       fmt.Sprintf("mtob_%s_to_%s_index_%d", src, dst, i),
			Messages: []Message{{Role: "user", Content: prompt}},
			Prompt:   prompt,
			Answer:   p.GroundTruth,
			Metadata: map[string]any{"idx": i, "use_cot": d.UseCoT},
		})
	}
	return out, nil
}

func (d *MTOB) loadPairs() ([]mtobTestPair, error) {
	dir := strings.TrimSpace(d.Dir)
	if dir == "" {
		dir = defaultMTOBDir
	}

	if d.split() == mtobSplitsTrain {
		raw, err := readJSONFile[[]mtobTrainPair](filepath.Join(dir, mtobTrainFile))
		if err != nil {
			return nil, fmt.Errorf("mtob: load train examples: %w", err)
		}

		out := make([]mtobTestPair, 0, len(raw))
		for _, p := range raw {
			if d.direction() == KalamangToEnglish {
				out = append(out, mtobTestPair{Original: p.Translation, GroundTruth: p.Original})
			} else {
				out = append(out, mtobTestPair{Original: p.Original, GroundTruth: p.Translation})
			}
		}
		return out, nil
	}

	file := mtobTestEKFile
	if d.direction() == KalamangToEnglish {
		file = mtobTestKEFile
	}
	out, err := readJSONFile[[]mtobTestPair](filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("mtob: load test examples: %w", err)
	}
	return out, nil
}

// ScoreBatch computes corpus-level chrF over all decoded translations.
func (d *MTOB) ScoreBatch(predictions, references []string) (float64, error) {
	cleaned := make([]string, 0, len(predictions))
	for _, p := range predictions {
		p = strings.TrimSuffix(p, mtobEndOfTurn)
		if d.UseCoT {
			p = ExtractTaggedAnswer(p)
		}
		cleaned = append(cleaned, p)
	}
	return metric.ChrF(cleaned, references)
}

func (d *MTOB) direction() string {
	if strings.TrimSpace(d.Direction) == KalamangToEnglish {
		return KalamangToEnglish
	}
	return EnglishToKalamang
}

func (d *MTOB) split() string {
	if strings.EqualFold(strings.TrimSpace(d.Split), mtobSplitsTrain) {
		return mtobSplitsTrain
	}
	return mtobSplitsTest
}

func (d *MTOB) languages() (source, target string) {
	if d.direction() == KalamangToEnglish {
		return "Kalamang", "English"
	}
	return "English", "Kalamang"
}

// PromptTranslationDirect asks for the bare translation.
func PromptTranslationDirect(sentence, sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(`You are tasked with translating the following sentence from %[1]s to %[2]s: "%[3]s".
I understand that you may not be familiar enough with %[1]s or %[2]s to make a confident translation, but please give your best guess.
Respond with only the translation and no other text.`, sourceLanguage, targetLanguage, sentence)
}

// PromptTranslationCoT asks for step-by-step reasoning followed by the
// translation inside <answer> tags.
func PromptTranslationCoT(sentence, sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(`You are tasked with translating the following sentence from %[1]s to %[2]s: "%[3]s".
I understand that you may not be familiar enough with %[1]s or %[2]s to make a confident translation, but please try your best.

First, think step-by-step about the translation process. Consider grammar, word choice, and potential ambiguities. Write down your thoughts.

Finally, provide the most likely translation enclosed within <answer> tags. For example: <answer>Your translation here.</answer>
Respond with only the thinking steps followed by the final tagged answer.`, sourceLanguage, targetLanguage, sentence)
}

var taggedAnswerRe = regexp.MustCompile(`(?is)<answer>(.*?)</answer>`)

// ExtractTaggedAnswer returns the text inside the first <answer> tag
// pair, or the whole trimmed text when no tags are present.
func ExtractTaggedAnswer(text string) string {
	if m := taggedAnswerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
