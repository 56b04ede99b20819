// Package database provides the controller's SQLite connection and
// schema migrations.
//
// The store holds the authorised plate list, the door state history and
// the access decision audit trail. Queries use parameterised statements
// and the file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
