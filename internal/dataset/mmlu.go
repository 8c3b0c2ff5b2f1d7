package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"
)

const (
	defaultMMLUPath = "data/mmlu.jsonl"
	mmluEnvPath     = "CARTRIDGES_MMLU_PATH"

	// Trailing scoring stub appended by the llama-evals export; stripped
	// before the prompt is parsed into messages.
	mmluScoringSuffix = "<|start_header_id|>assistant<|end_header_id|>\n\nThe best answer is"
	mmluAnswerPrefix  = "The best answer is"
)

// MMLU adapts the llama-evals MMLU export: each row carries a fully
// formatted chat prompt and the correct choice letter. A seeded shuffle
// picks a deterministic subsample.
type MMLU struct {
	Path        string
	NumProblems int
	Seed        int64
}

type mmluRow struct {
	InputFinalPrompts     []string `json:"input_final_prompts"`
	InputCorrectResponses []string `json:"input_correct_responses"`
}

func (d *MMLU) Name() string { return "mmlu" }

func (d *MMLU) Description() string {
	return "MMLU multiple-choice benchmark (llama-evals export)"
}

func (d *MMLU) Load(ctx context.Context) ([]Element, error) {
	if ctx == nil {
		return nil, errors.New("mmlu: nil context")
	}

	numProblems := d.NumProblems
	if numProblems <= 0 {
		numProblems = 200
	}
	seed := d.Seed
	if seed == 0 {
		seed = 47
	}

	path := strings.TrimSpace(os.Getenv(mmluEnvPath))
	if path == "" {
		path = strings.TrimSpace(d.Path)
	}
	if path == "" {
		path = defaultMMLUPath
	}

	rows, err := readJSONL[mmluRow](ctx, path)
	if err != nil {
		if os.IsNotExist(err) {
			return takeFirstN(defaultMMLUSample(), numProblems), nil
		}
		return nil, fmt.Errorf("mmlu: load %q: %w", path, err)
	}

	rng := rand.New(rand.NewSource(seed))
	indexes := rng.Perm(len(rows))
	indexes = takeFirstN(indexes, numProblems)

	out := make([]Element, 0, len(indexes))
	for i, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		row := rows[idx]
		if len(row.InputFinalPrompts) == 0 || len(row.InputCorrectResponses) == 0 {
			continue
		}
		prompt := row.InputFinalPrompts[0]
		answer := strings.TrimSpace(row.InputCorrectResponses[0])
		if strings.TrimSpace(prompt) == "" || answer == "" {
			continue
		}

		messages := ParseChatMessages(strings.TrimSuffix(prompt, mmluScoringSuffix))

		out = append(out, Element{
			ID:           fmt.Sprintf("mmlu-%d", i),
			Messages:     messages,
			Prompt:       prompt,
			Answer:       answer,
			MaxNewTokens: 1,
			Metadata:     map[string]any{"row": idx},
		})
	}

	if len(out) == 0 {
		return takeFirstN(defaultMMLUSample(), numProblems), nil
	}
	return out, nil
}

// Score compares the first character of the prediction against the first
// character of the reference letter, after stripping the answer stub.
func (d *MMLU) Score(prediction, answer string) (float64, error) {
	pred := strings.TrimSpace(prediction)
	if pred == "" {
		return 0, nil
	}
	if strings.HasPrefix(pred, mmluAnswerPrefix) {
		pred = strings.TrimSpace(strings.TrimPrefix(pred, mmluAnswerPrefix))
	}

	ref := strings.TrimSpace(answer)
	if pred == "" || ref == "" {
		return 0, nil
	}
	if pred[0] == ref[0] {
		return 1, nil
	}
	return 0, nil
}

var chatMessageRe = regexp.MustCompile(`(?s)<\|start_header_id\|>(.*?)<\|end_header_id\|>(.*?)<\|eot_id\|>`)

// ParseChatMessages parses llama-format chat text
// (<|start_header_id|>role<|end_header_id|>content<|eot_id|> blocks) into
// messages, dropping blocks with empty content.
func ParseChatMessages(text string) []Message {
	matches := chatMessageRe.FindAllStringSubmatch(text, -1)

	out := make([]Message, 0, len(matches))
	for _, m := range matches {
		content := strings.TrimSpace(m[2])
		if content == "" {
			continue
		}
		out = append(out, Message{
			Role:    strings.TrimSpace(m[1]),
			Content: content,
		})
	}
	return out
}

func defaultMMLUSample() []Element {
	rows := []struct {
		question string
		choices  []string
		answer   string
	}{
		{
			question: "Which planet is known as the Red Planet?",
			choices:  []string{"Earth", "Mars", "Jupiter", "Venus"},
			answer:   "B",
		},
		{
			question: "What is 7 * 6?",
			choices:  []string{"36", "40", "42", "48"},
			answer:   "C",
		},
		{
			question: "Water boils at what temperature at sea level (Celsius)?",
			choices:  []string{"50", "75", "100", "125"},
			answer:   "C",
		},
	}

	out := make([]Element, 0, len(rows))
	for i, r := range rows {
		var sb strings.Builder
		sb.WriteString(strings.TrimSpace(r.question))
		sb.WriteString("\n\n")
		for j, c := range r.choices {
			sb.WriteString(string(rune('A' + j)))
			sb.WriteString(". ")
			sb.WriteString(c)
			sb.WriteByte('\n')
		}
		sb.WriteString("\nReply with just the letter (e.g., A).")

		prompt := sb.String()
		out = append(out, Element{
			ID:           fmt.Sprintf("mmlu-sample-%d", i+1),
			Messages:     []Message{{Role: "user", Content: prompt}},
			Prompt:       prompt,
			Answer:       r.answer,
			MaxNewTokens: 1,
			Metadata:     map[string]any{"sample": true},
		})
	}
	return out
}
