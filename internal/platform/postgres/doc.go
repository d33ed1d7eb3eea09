// Package postgres provides PostgreSQL implementations of the task and
// notification stores defined in internal/store, plus the embedded goose
// migrations that create their schema. Queries run through database/sql with
// the pgx stdlib driver.
//
// The task claim and every status transition are single UPDATE statements
// whose WHERE clause carries the allowed source statuses, so concurrent
// workers race on the row lock and exactly one of them observes an affected
// row.
package postgres
