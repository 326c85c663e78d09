// Package database provides the SQLite connection used for local attribute
// history.
//
// The connection runs in WAL mode with a busy timeout and a single open
// connection. Schema changes are plain SQL files applied by Migrate from any
// fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql has a matching .down.sql.
package database
