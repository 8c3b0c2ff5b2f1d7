package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazylabs/cartridges/internal/metric"
)

const defaultQasperPath = "data/qasper.jsonl"

const qasperPrompt = `Please write a succinct answer to the following question.
You do not need to restate the paper name or answer in complete sentences.

<question>
%s
</question>

Provide your answer in the following format (output nothing else):

<answer>
{your answer here}
</answer>`

// Qasper adapts the rewritten-question Qasper QA export: one JSONL row
// per question over a scientific paper.
type Qasper struct {
	Path string
}

type qasperRow struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	PaperID  string `json:"paper_id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

func (d *Qasper) Name() string { return "qasper" }

func (d *Qasper) Description() string {
	return "Qasper question answering over scientific papers"
}

func (d *Qasper) Load(ctx context.Context) ([]Element, error) {
	if ctx == nil {
		return nil, errors.New("qasper: nil context")
	}

	path := strings.TrimSpace(d.Path)
	if path == "" {
		path = defaultQasperPath
	}

	rows, err := readJSONL[qasperRow](ctx, path)
	if err != nil {
		return nil, fmt.Errorf("qasper: load %q: %w", path, err)
	}

	out := make([]Element, 0, len(rows))
	for idx, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		question := strings.TrimSpace(row.Question)
		if question == "" {
			continue
		}

		prompt := fmt.Sprintf(qasperPrompt, question)
		out = append(out, Element{
			ID:     fmt.Sprintf("%d-%s", idx, row.PaperID),
			Prompt: prompt,
			Messages: []Message{
				{Role: "user", Content: prompt},
				{Role: "assistant", Content: fmt.Sprintf("<answer>\n%s\n</answer>", row.Answer)},
			},
			Answer: row.Answer,
			Metadata: map[string]any{
				"question_id": fmt.Sprintf("%d-%s", idx, row.PaperID),
				"paper_id":    row.PaperID,
				"title":       row.Title,
				"abstract":    row.Abstract,
			},
		})
	}
	return out, nil
}

// Score computes token F1 between the tagged answer extracted from the
// prediction and the reference answer.
func (d *Qasper) Score(prediction, answer string) (float64, error) {
	return metric.TokenF1(ExtractTaggedAnswer(prediction), answer), nil
}
