// Package database provides the SQLite handle used for property history.
//
// Open creates the database directory, applies the connection pragmas
// (busy timeout, foreign keys and optionally WAL) and limits the pool to a
// single connection, matching SQLite's single-writer model.
//
// Schema changes are versioned SQL files applied by Migrate from any
// fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and
// every .up.sql file has a .down.sql counterpart.
package database
