package upgrade

// RequiredSchemaVersion is the golang-migrate version this binary expects
// the database to be at. Bump it alongside adding a new
// internal/store/postgres/migrations/NNNN_*.up.sql file.
const RequiredSchemaVersion = 1

// Data migration hooks are registered here.
// Add new hooks when a schema migration requires Go-based data transformation.
//
// Example:
//
//	func init() {
//		RegisterDataHook(2, "002_backfill_member_nicknames", func(ctx context.Context, db *sql.DB) error {
//			// transform data after migration 000002 is applied
//			return nil
//		})
//	}
