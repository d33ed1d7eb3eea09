// Package testdb provides utilities for database integration tests.
//
// Tests run against the database named by DATABASE_URL and are skipped when
// it is unset. GetTestDBWithT applies the embedded goose migrations once per
// connection, and WithTx runs each test body inside a transaction that is
// always rolled back, so tests can share a database without cleanup.
//
// # Basic Usage
//
//	func TestSomething(t *testing.T) {
//		db := testdb.GetTestDBWithT(t)
//		testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//			s := postgres.NewPostgresTaskStore(tx, nil)
//			// ...
//		})
//	}
package testdb
