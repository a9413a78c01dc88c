package sync

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/locsync/internal/changeset"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
)

// LocaleSummary is what a pass did for one locale.
type LocaleSummary struct {
	Code string

	// Pulled counts entities updated in the store from files; Pushed counts
	// entities written to files from the store.
	Pulled int
	Pushed int

	TranslationsCreated int
	TranslationsUpdated int

	ChangedResources []string
	SaveErrors       map[string]error

	CommitMessage string
	CommitAuthor  string
	Committed     bool
}

// Report is the outcome of one pass.
type Report struct {
	Project string
	Started time.Time
	DryRun  bool

	// Entities holds the entity-level counts.
	Entities changeset.Result

	AddedLocales     []string
	SkippedResources []string

	// FailedLocales maps locale codes to the error that failed them.
	FailedLocales map[string]error

	Locales []LocaleSummary

	// NoOp is set when the pass changed nothing anywhere.
	NoOp bool

	Duration  time.Duration
	SyncLogID string
}

// Failed returns the failed locale codes, sorted.
func (r *Report) Failed() []string {
	return slices.Sorted(maps.Keys(r.FailedLocales))
}

// Totals sums the locale summaries.
func (r *Report) Totals() (pulled, pushed, commits int) {
	for _, l := range r.Locales {
		pulled += l.Pulled
		pushed += l.Pushed
		if l.Committed {
			commits++
		}
	}
	return pulled, pushed, commits
}

// Summary renders the report on one line.
func (r *Report) Summary() string {
	if r.NoOp {
		return "nothing to do"
	}
	pulled, pushed, commits := r.Totals()
	e := r.Entities
	parts := []string{
		fmt.Sprintf("entities +%d ~%d -%d", e.Created+e.Revived, e.Updated, e.Obsoleted),
		fmt.Sprintf("pulled %d", pulled),
		fmt.Sprintf("pushed %d", pushed),
		fmt.Sprintf("%d commits", commits),
	}
	if n := len(r.SkippedResources); n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	if failed := r.Failed(); len(failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(failed, ", "))
	}
	if r.DryRun {
		parts = append(parts, "dry run")
	}
	return strings.Join(parts, ", ")
}

// CommitMessage builds the message of a locale's commit. When more than
// one author contributed, each gets a Co-authored-by trailer once.
func CommitMessage(p *store.Project, locale *l10n.Locale, authors []*store.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Update %s (%s) localization of %s", locale.Name, locale.Code, p.Name)

	var sigs []string
	seen := make(map[string]bool)
	for _, u := range authors {
		sig := u.Signature()
		if !seen[sig] {
			seen[sig] = true
			sigs = append(sigs, sig)
		}
	}
	if len(sigs) > 1 {
		b.WriteString("\n")
		for _, sig := range sigs {
			b.WriteString("\nCo-authored-by: " + sig)
		}
	}
	return b.String()
}

// CommitAuthor picks the commit author: the user with the most pushed
// approved translations, the earliest contributor on a tie, or the sync
// user when nobody contributed.
func CommitAuthor(contributions []*store.User, syncUser store.User) string {
	type tally struct {
		user  *store.User
		count int
		first int
	}
	counts := make(map[string]*tally)
	for i, u := range contributions {
		sig := u.Signature()
		if t, ok := counts[sig]; ok {
			t.count++
			continue
		}
		counts[sig] = &tally{user: u, count: 1, first: i}
	}
	if len(counts) == 0 {
		return syncUser.Signature()
	}
	best := slices.MaxFunc(slices.Collect(maps.Values(counts)), func(a, b *tally) int {
		return cmp.Or(cmp.Compare(a.count, b.count), cmp.Compare(b.first, a.first))
	})
	return best.user.Signature()
}
