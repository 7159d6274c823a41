// Package store provides the repositories queries are read from.
//
// Memory holds records in process and answers queries with
// query.FilterRecords after attaching the related records that links and
// path conditions need. SQL compiles queries with querysql and runs them
// through sqlx against SQLite (mattn/go-sqlite3) or PostgreSQL (lib/pq).
//
// Both repositories answer the same query with the same records:
//
//   - eql is null safe, so NOT(age = 30) keeps rows without an age
//   - ordered comparisons, like and regexp against NULL are unknown
//   - NULL sorts first ascending, and the model key breaks ties
//   - LIKE is case sensitive
//
// # SQLite configuration
//
// SQLite connections are opened through the "sqlite3_relq" driver, which
// registers a REGEXP function backed by Go's regexp package and turns on
// case_sensitive_like. The pool is limited to one connection.
//
// A query whose conditions can never match is answered with no records and
// no I/O.
package store
