// Package database provides SQLite-based scan history for portscout.
//
// The HistoryDB stores every finished scan report (opt-in via --db) so that
// "portscout compare" can show which ports opened, closed, or changed
// service between runs.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
//
// The scanners and the detector never touch the database; only the CLI
// saves and loads reports.
package database
