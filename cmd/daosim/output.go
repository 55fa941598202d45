package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/semanticarchitectures/Framework/pkg/dao"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func ratio(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func printProposals(w io.Writer, results []ProposalResult) {
	_, _ = fmt.Fprintf(w, "\n%sPROPOSALS%s\n", ColorBold+ColorCyan, ColorReset)
	t := newTable(w, "Title", "Outcome", "State", "For", "Against", "Mission", "Note")
	for _, r := range results {
		outcome, state := "-", "-"
		if r.Decision.ProposalID != "" {
			outcome = string(r.Decision.Outcome)
			state = r.Decision.State.String()
		}
		t.Append([]string{
			r.Title,
			outcome,
			state,
			ratio(r.Decision.ForVotes),
			ratio(r.Decision.AgainstVotes),
			r.Decision.MissionID,
			r.Error,
		})
	}
	t.Render()
}

func printMissions(w io.Writer, results []ProposalResult) {
	_, _ = fmt.Fprintf(w, "\n%sMISSIONS%s\n", ColorBold+ColorCyan, ColorReset)
	t := newTable(w, "Mission", "Agents", "Outcome", "Progress", "Days", "Events", "Paid", "Withheld")
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		res := r.Report.Results
		dist := r.Report.Settlement.Distribution
		t.Append([]string{
			r.Report.Mission.Title,
			strings.Join(r.Assigned, ","),
			string(res.Outcome),
			ratio(res.Progress),
			fmt.Sprintf("%d/%d", res.DaysElapsed, res.DaysBudgeted),
			strconv.Itoa(len(res.Events)),
			money(dist.Paid),
			dist.Withheld,
		})
	}
	t.Render()
}

func printAgents(w io.Writer, stats dao.Stats) {
	_, _ = fmt.Fprintf(w, "\n%sAGENTS%s\n", ColorBold+ColorCyan, ColorReset)
	t := newTable(w, "Agent", "Reputation", "Earnings", "Missions", "Avg Score")
	for _, a := range stats.AgentStats {
		t.Append([]string{
			a.Name,
			ratio(a.Reputation),
			money(a.Earnings),
			strconv.Itoa(a.Completed),
			ratio(a.AverageScore),
		})
	}
	t.Render()
}

func printSummary(w io.Writer, stats dao.Stats) {
	_, _ = fmt.Fprintf(w, "\n%sTreasury:%s %s (paid %s)\n", ColorBold, ColorReset, money(stats.Treasury), money(stats.TreasuryPaid))
	_, _ = fmt.Fprintf(w, "%sEvents:%s   %d (head %s)\n", ColorBold, ColorReset, stats.Events, stats.EventHead)
}
