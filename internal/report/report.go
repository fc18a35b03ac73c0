// Package report renders runs, rankings and simulations as operator text.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/ChuLiYu/conflict-engine/internal/simulator"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

// WriteSummary prints the key figures of a run
func WriteSummary(w io.Writer, s types.Summary) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "execution\t%s\n", s.ExecutionID)
	fmt.Fprintf(tw, "stage\t%s\n", s.Stage)
	fmt.Fprintf(tw, "iterations\t%d\n", s.Iterations)
	fmt.Fprintf(tw, "conflicts\t%d (%d critical)\n", s.TotalConflicts, s.CriticalConflicts)
	fmt.Fprintf(tw, "solutions\t%d ranked of %d\n", s.RankedSolutions, s.TotalSolutions)
	fmt.Fprintf(tw, "feedback\t%d\n", s.FeedbackCount)
	fmt.Fprintf(tw, "weights\t%s\n", FormatWeights(s.Weights))
	if s.ErrorCount > 0 {
		fmt.Fprintf(tw, "warnings\t%d\n", s.ErrorCount)
	}
	return tw.Flush()
}

// FormatWeights renders the four coefficients on one line
func FormatWeights(wt types.Weights) string {
	return fmt.Sprintf("feasibility=%.4f impact=%.4f deadline=%.4f simplicity=%.4f",
		wt.Feasibility, wt.Impact, wt.Deadline, wt.Simplicity)
}

// WriteConflicts prints one row per conflict in the given order
func WriteConflicts(w io.Writer, conflicts []types.Conflict) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tRESOURCE\tDATE\tALLOCATED\tCAPACITY\tOVER %\tSEVERITY\tPROJECTS")
	for _, c := range conflicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%.1f\t%s\t%d\n",
			c.ID, c.ResourceName, c.Date, c.AllocatedHours, c.CapacityHours,
			c.OverallocationPercent, c.Severity, c.ProjectsCount)
	}
	return tw.Flush()
}

// WriteRanking prints the ranked solutions best first
func WriteRanking(w io.Writer, ranked []types.RankedSolution) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSOLUTION\tCONFLICT\tSTRATEGY\tSCORE\tFEAS\tIMPACT\tDEADLINE\tSIMPLE")
	for i, r := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			i+1, r.ID, r.ConflictID, r.Strategy, r.RankScore,
			r.Components.Feasibility, r.Components.Impact, r.Components.Deadline, r.Components.Simplicity)
	}
	return tw.Flush()
}

// WriteFeedback prints feedback records in the given order
func WriteFeedback(w io.Writer, history []types.Feedback) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "EXECUTION\tSOLUTION\tSTRATEGY\tACCEPTED\tRATING\tOUTCOME\tEFFECTIVENESS")
	for _, fb := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\t%.2f\n",
			fb.ExecutionID, fb.SolutionID, fb.Strategy, fb.Accepted, fb.ManagerRating,
			fb.Outcome, fb.EffectivenessScore)
	}
	return tw.Flush()
}

// WriteSimulation prints baseline and simulated metrics side by side
func WriteSimulation(w io.Writer, res simulator.Result) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "METRIC\tBASELINE\tSIMULATED\tDELTA")
	fmt.Fprintf(tw, "conflicts\t%d\t%d\t%+d\n",
		res.Baseline.TotalConflicts, res.Simulated.TotalConflicts, res.Delta.TotalConflicts)
	fmt.Fprintf(tw, "critical\t%d\t%d\t%+d\n",
		res.Baseline.CriticalConflicts, res.Simulated.CriticalConflicts, res.Delta.CriticalConflicts)
	fmt.Fprintf(tw, "over-allocated hours\t%.2f\t%.2f\t%+.2f\n",
		res.Baseline.OverallocatedHours, res.Simulated.OverallocatedHours, res.Delta.OverallocatedHours)
	fmt.Fprintf(tw, "affected resources\t%d\t%d\t%+d\n",
		res.Baseline.AffectedResources, res.Simulated.AffectedResources, res.Delta.AffectedResources)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nscenario %s changed %d item(s); improvement %.3f: %s\n",
		res.Scenario.Kind, res.Changed, res.ImprovementScore, res.Recommendation)
	return err
}

// RankingLines renders one stable line per ranked solution
func RankingLines(ranked []types.RankedSolution) []string {
	lines := make([]string, 0, len(ranked))
	for i, r := range ranked {
		lines = append(lines, fmt.Sprintf("%d. %s %s %.4f", i+1, r.ID, r.Strategy, r.RankScore))
	}
	return lines
}

// DiffRankings returns a unified diff between two rankings, or "" when they
// render identically
func DiffRankings(before, after []types.RankedSolution) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        withNewlines(RankingLines(before)),
		B:        withNewlines(RankingLines(after)),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff rankings: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return text, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
