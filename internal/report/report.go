// Package report summarizes stored evaluation records.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/crucible/internal/result"
)

type Summary struct {
	Dataset       string  `json:"dataset"`
	Evaluations   int     `json:"evaluations"`
	Successes     int     `json:"successes"`
	Regressions   int     `json:"regressions"`
	Failures      int     `json:"failures"`
	BestComposite float64 `json:"best_composite"`
	BestCandidate string  `json:"best_candidate"`
	MeanComposite float64 `json:"mean_composite"`
}

// Generate reads evaluation records under runDir and writes a per-dataset
// summary in the requested format.
func Generate(runDir, format string, w io.Writer) error {
	evals, err := collect(runDir)
	if err != nil {
		return err
	}
	if len(evals) == 0 {
		return fmt.Errorf("no evaluation records found in %s", runDir)
	}

	summaries := aggregate(evals)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collect(runDir string) ([]*result.Evaluation, error) {
	var evals []*result.Evaluation
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		ev, err := result.ReadEvaluation(path)
		if err != nil {
			return nil
		}
		evals = append(evals, ev)
		return nil
	})
	return evals, err
}

func aggregate(evals []*result.Evaluation) []Summary {
	type accum struct {
		count, success, regressed, failed int
		compositeSum, best                float64
		bestCandidate                     string
	}
	byDataset := map[string]*accum{}

	for _, ev := range evals {
		a, ok := byDataset[ev.Dataset]
		if !ok {
			a = &accum{}
			byDataset[ev.Dataset] = a
		}
		a.count++
		switch ev.Outcome {
		case result.OutcomeSuccess:
			a.success++
			a.compositeSum += ev.Composite
			if ev.Composite > a.best {
				a.best = ev.Composite
				a.bestCandidate = ev.Candidate
			}
		case result.OutcomeRegressed:
			a.regressed++
		default:
			a.failed++
		}
	}

	var summaries []Summary
	for dataset, a := range byDataset {
		s := Summary{
			Dataset:       dataset,
			Evaluations:   a.count,
			Successes:     a.success,
			Regressions:   a.regressed,
			Failures:      a.failed,
			BestComposite: a.best,
			BestCandidate: a.bestCandidate,
		}
		if a.success > 0 {
			s.MeanComposite = a.compositeSum / float64(a.success)
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Dataset < summaries[j].Dataset
	})
	return summaries
}

func writeTable(summaries []Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tEVALS\tOK\tREGRESSED\tFAILED\tBEST\tMEAN\tBEST CANDIDATE")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.4f\t%.4f\t%s\n",
			s.Dataset, s.Evaluations, s.Successes, s.Regressions, s.Failures,
			s.BestComposite, s.MeanComposite, s.BestCandidate)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []Summary, w io.Writer) error {
	fmt.Fprintln(w, "| Dataset | Evals | OK | Regressed | Failed | Best | Mean | Best Candidate |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %.4f | %.4f | %s |\n",
			s.Dataset, s.Evaluations, s.Successes, s.Regressions, s.Failures,
			s.BestComposite, s.MeanComposite, s.BestCandidate)
	}
	return nil
}

func writeJSON(summaries []Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
