// Package pgstore is the PostgreSQL implementation of queue.Store.
//
// It shares commit rules with the SQLite and in-memory stores through
// queue.PrepareCreate and queue.ApplyUpdate. Update locks the job row with
// SELECT ... FOR UPDATE so concurrent writers to one job serialize in the
// database while writers to different jobs proceed in parallel.
package pgstore
