// Package core provides the table merge and column-name reconciliation logic.
//
// This package holds all domain logic independent of any UI or transport
// layer. The web server and the CLI drive it through the same [Session]
// operations.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Registry: loaded source tables keyed by file (and sheet), in load order.
//   - Normalizer and Clusterer: raw column names are reduced to comparison
//     keys with [Normalize] and grouped by key in first-occurrence order.
//   - Resolver: the per-group naming choice (suggested key, an existing
//     column, or custom text) and the [RenameMap] it yields.
//   - Merge Engine: [Combine] builds the outer union of all tables by column
//     name, matching repeated names by occurrence.
//   - Session: one user's registry, choices and committed final table.
//
// # Reconcile
//
// Every render starts from [Session.Reconcile], which merges the registry
// into a preview, clusters its columns and resolves the rename map:
//
//	view := sess.Reconcile(ctx)
//	for _, g := range view.Groups {
//	    fmt.Println(g.Index, g.Key, g.Resolved)
//	}
//
// Views are memoized until the registry or a choice changes.
//
// # Apply Renaming
//
// [Session.Apply] renames every table into a staging copy, rejects any table
// where two columns would share a name, merges the staged tables and checks
// the merged columns again. Only a fully successful run replaces the
// registry and the final table; see [ApplyState] for the steps.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (size, format, encoding)
//   - MRG001-MRG002: Merge errors
//   - REN001-REN005: Renaming and collision errors
//   - SES001-SES002: Session errors
//   - EXP001-EXP003: Export errors
//
// # Sessions
//
// [SessionManager] keeps one session per browser with an idle TTL and a
// bound on live sessions. Each session serializes its own operations.
package core
