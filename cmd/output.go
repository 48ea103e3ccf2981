package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/sells-group/watch-research/internal/model"
)

var (
	okColor   = color.New(color.FgHiGreen)
	failColor = color.New(color.FgRed)
	skipColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
	headColor = color.New(color.Bold)
)

func statusLabel(s model.StageStatus) string {
	upper := strings.ToUpper(string(s))
	switch s {
	case model.StageComplete:
		return okColor.Sprint(upper)
	case model.StageFailed:
		return failColor.Sprint(upper)
	default:
		return skipColor.Sprint(upper)
	}
}

// printReport writes a human summary of a research run.
func printReport(w io.Writer, r *model.RunReport) {
	fmt.Fprintf(w, "%s %s\n", headColor.Sprint("watch"), r.WatchID)
	for _, s := range r.Stages {
		fmt.Fprintf(w, "  %-7s %s %s\n", s.Name, statusLabel(s.Status), dimColor.Sprintf("(%dms)", s.DurationMS))
		if s.Error != "" {
			fmt.Fprintf(w, "          %s\n", failColor.Sprint(s.Error))
		}
	}

	if r.Spec != nil {
		fmt.Fprintf(w, "  specs via %s: %d fields, %d sources\n",
			r.Spec.Provider, len(r.Spec.Fields.Known()), len(r.Spec.Sources))
	}
	if v := r.Valuation; v != nil && v.Success {
		fmt.Fprintf(w, "  market value %s (median %s, %d listings, factor %s)\n",
			okColor.Sprint(v.MarketValue.StringFixed(2)),
			v.Median.StringFixed(2),
			v.ComparableListings,
			v.ConditionFactor.String(),
		)
	}
	for _, img := range r.Images {
		marker := ""
		if img.IsPrimary {
			marker = okColor.Sprint(" [primary]")
		}
		fmt.Fprintf(w, "  image %s%s\n", img.Path, marker)
	}
}

func printWatch(w io.Writer, wt *model.Watch) {
	fmt.Fprintf(w, "%s %s %s %s\n", headColor.Sprint(wt.ID), wt.Brand, wt.Model, wt.ReferenceNumber)
	fmt.Fprintf(w, "  user       %s\n", wt.UserID)
	fmt.Fprintf(w, "  condition  %s\n", wt.Condition)
	if wt.CurrentMarketValue != nil {
		fmt.Fprintf(w, "  value      %s\n", okColor.Sprint(wt.CurrentMarketValue.StringFixed(2)))
	}
	if wt.LastValuationAt != nil {
		fmt.Fprintf(w, "  valued at  %s\n", wt.LastValuationAt.Format("2006-01-02 15:04"))
	}
	for _, k := range model.KnownSpecKeys {
		if v := wt.Specs.String(k); v != "" {
			fmt.Fprintf(w, "  %-18s %s\n", k, v)
		}
	}
}
