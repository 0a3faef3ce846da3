package ml

import (
	"fmt"
	"io"
	"strings"
)

const (
	StageBefore = "before training"
	StageAfter  = "after training"
)

// Reporter receives progress from Train.
type Reporter interface {
	Evaluated(stage string, r *Report)
	Checkpoint(c Checkpoint)
	Finished(res *Result)
}

type NopReporter struct{}

func (NopReporter) Evaluated(string, *Report) {}
func (NopReporter) Checkpoint(Checkpoint)     {}
func (NopReporter) Finished(*Result)          {}

// ConsoleReporter prints a human readable report.
type ConsoleReporter struct {
	w io.Writer
	// Detail lists every sample of the pre-training evaluation.
	Detail bool
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (c *ConsoleReporter) Evaluated(stage string, r *Report) {
	if c.Detail && stage == StageBefore {
		for _, p := range r.Predictions {
			mark := "✅"
			if !p.Correct() {
				mark = "❌"
			}
			fmt.Fprintf(c.w, "%s     Network gave: %d, expected: %d\n", mark, p.Guess, p.Expected)
		}
	}
	fmt.Fprintf(c.w, "%s: correctly identified %d/%d (%.2f%%) | error %.6f\n",
		stage, r.Correct, r.Total, r.Accuracy(), r.Error)
}

func (c *ConsoleReporter) Checkpoint(cp Checkpoint) {
	fmt.Fprintf(c.w, "Epoch %d | Error: %.6f | Delta: %s | Acc: %.2f%% | Rate: %.6g\n",
		cp.Epoch, cp.Error, FormatDelta(cp), cp.Accuracy, cp.LearnRate)
}

func (c *ConsoleReporter) Finished(res *Result) {
	fmt.Fprintf(c.w, "Took %v to batch train (%d batches)\n", res.Elapsed, res.Batches)
	fmt.Fprintf(c.w, "Accuracy %.2f%% -> %.2f%% (%+.2f%%)\n",
		res.Before.Accuracy(), res.After.Accuracy(), res.Improvement())
	WriteConfusion(c.w, res.After)
}

// FormatDelta renders the percentage change, or N/A when it is undefined.
func FormatDelta(cp Checkpoint) string {
	if !cp.DeltaDefined {
		return "N/A"
	}
	return fmt.Sprintf("%+.3f%%", cp.DeltaPercent)
}

// WriteConfusion prints the per-class misclassification counts of r.
func WriteConfusion(w io.Writer, r *Report) {
	fmt.Fprintln(w, "class | missed (true) | wrong guesses")
	fmt.Fprintln(w, strings.Repeat("-", 37))
	for c := range r.IncorrectByTrue {
		fmt.Fprintf(w, "%5d | %13d | %13d\n", c, r.IncorrectByTrue[c], r.IncorrectByGuessed[c])
	}
}
