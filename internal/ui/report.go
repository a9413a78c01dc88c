package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/locsync/internal/store"
	locsync "github.com/steveyegge/locsync/internal/sync"
)

// RenderReport writes a pass report.
func RenderReport(w io.Writer, r *locsync.Report) {
	switch {
	case r.NoOp:
		fmt.Fprintf(w, "%s %s: nothing to do\n", RenderPass("✓"), RenderBold(r.Project))
		return
	case len(r.FailedLocales) > 0:
		fmt.Fprintf(w, "%s %s: %s\n", RenderWarn("⚠"), RenderBold(r.Project), r.Summary())
	default:
		fmt.Fprintf(w, "%s %s: %s\n", RenderPass("✓"), RenderBold(r.Project), r.Summary())
	}

	if len(r.AddedLocales) > 0 {
		fmt.Fprintf(w, "   Added locales: %s\n", strings.Join(r.AddedLocales, ", "))
	}

	rows := [][]string{}
	for _, l := range r.Locales {
		if l.Pulled == 0 && l.Pushed == 0 && len(l.SaveErrors) == 0 {
			continue
		}
		commit := RenderMuted("-")
		switch {
		case l.Committed:
			commit = RenderPass(l.CommitAuthor)
		case r.DryRun && l.CommitAuthor != "":
			commit = RenderMuted("would commit as " + l.CommitAuthor)
		}
		rows = append(rows, []string{l.Code, fmt.Sprint(l.Pulled), fmt.Sprint(l.Pushed), commit})
	}
	if len(rows) > 0 {
		fmt.Fprint(w, table([]string{"locale", "pulled", "pushed", "commit"}, rows))
	}

	for _, code := range r.Failed() {
		fmt.Fprintf(w, "   %s %s: %v\n", RenderFail("✗"), code, r.FailedLocales[code])
	}
	for _, path := range r.SkippedResources {
		fmt.Fprintf(w, "   %s skipped %s\n", RenderWarn("⚠"), path)
	}
	if r.Duration > 0 {
		fmt.Fprintf(w, "   %s\n", RenderMuted("took "+r.Duration.Round(time.Millisecond).String()))
	}
}

// RenderProjects writes one line per project.
func RenderProjects(w io.Writer, projects []*store.Project) {
	if len(projects) == 0 {
		fmt.Fprintf(w, "%s No projects. Run 'locsync project import' first.\n", RenderWarn("⚠"))
		return
	}
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.Slug, p.Name, formatTime(p.LastSyncedAt)})
	}
	fmt.Fprint(w, table([]string{"slug", "name", "last synced"}, rows))
}

// RenderSyncLogs writes a project's recent passes, newest first.
func RenderSyncLogs(w io.Writer, p *store.Project, logs []*store.SyncLog) {
	fmt.Fprintf(w, "%s %s (last synced %s)\n", RenderAccent("●"), RenderBold(p.Slug), formatTime(p.LastSyncedAt))
	if len(logs) == 0 {
		fmt.Fprintf(w, "   %s\n", RenderMuted("no passes recorded"))
		return
	}
	for _, l := range logs {
		mark := RenderPass("✓")
		if len(l.FailedLocales) > 0 {
			mark = RenderWarn("⚠")
		}
		fmt.Fprintf(w, "   %s %s  %s\n", mark, RenderMuted(formatTime(l.StartedAt)), l.Summary)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05Z")
}

// table lays rows out in padded columns under a muted header.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	line := func(cells []string, style func(string) string) {
		b.WriteString("   ")
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			pad := ""
			if i < len(cells)-1 {
				pad = strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			b.WriteString(style(cell) + pad)
		}
		b.WriteString("\n")
	}
	line(header, RenderMuted)
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
	return b.String()
}
