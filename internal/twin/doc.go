// Package twin provides the device twin: a local, concurrently accessible
// mirror of a remote device's attribute state.
//
// The twin is partitioned by Scope. Each scope maps attribute keys to a
// dynamically typed Value. The Store keeps that state behind a single
// read/write lock and answers two kinds of question:
//
//   - what does the device currently look like (GetAll, Get, GetValue)
//   - which entries of a candidate update would actually change it
//     (UpdateDiff, UpdateDiffAll, Differs)
//
// # Diff modes
//
// The remote telemetry service re-types values freely: a boolean may come
// back as the string "true", an integer as a float. Two values are the same
// when they are natively equal or when both are non-null and print the same
// way (see Value.Text).
//
// Strict mode reports every candidate key that is absent from the twin. In
// ignore-twin-null mode a key that is absent, or stored as null, is never
// reported:
//
//	mode      | scope unknown  | key absent | twin null    | twin set
//	----------+----------------+------------+--------------+-------------
//	strict    | all candidates | changed    | changed if   | changed if
//	          |                |            | c is not null| !same(t, c)
//	ignore    | nothing        | unchanged  | unchanged    | changed if
//	          |                |            |              | !same(t, c)
//
// # Write policy
//
// Mutating calls never fail. An unknown scope, an empty key or a nil batch is
// logged as a warning and ignored. Telemetry-history keys (see HistoryKey)
// are dropped at debug level and never stored.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Batch updates are applied
// under one write lock, so readers never observe half of a batch.
package twin
