// Package sync runs sync passes: it brings a project's localization files
// in the repositories and its translations in the store back in line.
//
// Architecture
//
// One pass of one project:
//
//	repositories ──pull──▶ working copies ──build──▶ project.Project
//	                                                     │
//	                      store ◀──entity changeset──────┤
//	                        │                            │
//	                        └──▶ locale changesets ◀─────┘  (one per locale, in parallel)
//	                                   │
//	                   store writes + locale files saved
//	                                   │
//	                   commit per locale ──push──▶ repositories
//
// Each pass takes a logical timestamp. Store writes made by the pass are
// stamped with it and the project's LastSyncedAt advances to it, so the
// next pass only sees store edits made after this one. Repository changes
// are tracked by the revision each working copy was at when the pass ended.
//
// Usage
//
//	engine := sync.New(st, sync.Options{CheckoutsDir: "/var/lib/locsync"}, nil)
//	report, err := engine.SyncProject(ctx, "firefox")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(report.Summary())
//
// Failures
//
// Files that fail to parse are skipped and listed in the report. A failed
// pull of a translation repository, a failed commit or a failed save marks
// only the affected locales. After a failed commit LastSyncedAt stays where
// it was, so the next pass pushes the same store edits again. A failed pull of the source repository, or a
// project whose layout cannot be discovered, aborts the pass before it
// writes anything.
package sync
