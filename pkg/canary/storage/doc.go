// Package storage persists the canary audit trail: prompt versions, release
// snapshots, evaluation records and transition events. It also keeps the
// latest statistics bucket of every version so restarts do not depend on
// evaluation records that retention has pruned.
//
// Two backends implement Storage:
//
//   - SQLite: durable storage for single-node deployments. Either the cgo
//     driver (github.com/mattn/go-sqlite3, "sqlite3") or the pure Go driver
//     (modernc.org/sqlite, "sqlite") can be selected.
//   - Memory: in-process storage for tests and ephemeral runs.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "data/canary.db",
//	    Driver:      storage.DriverPureGo,
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	data, err := storage.Load(ctx, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = controller.Restore(data)
//
// Storage never participates in routing or decisions; the controller writes
// to it through the asynchronous recorder.
package storage
