// Package history keeps a local log of attribute updates applied to the
// device twin.
//
// Every update that reaches the twin from a push notification is appended to
// the attribute_history table. Entries are queried per device, scope and key,
// newest first, and pruned by the time they were written:
//
//	repo := history.NewSQLiteRepository(db.DB)
//	entries, err := repo.GetHistory(ctx, deviceID, twin.ScopeShared, "temperature", 20)
//
// The repository satisfies session.Recorder, so it can be handed straight to
// session.Deps.Recorders.
package history
