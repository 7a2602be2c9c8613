// Package recorder archives received AUI frames into Postgres.
//
// Frames are enqueued without blocking the stream, accumulated into batches,
// and written with pgx batch inserts on a size or interval trigger. When the
// queue is full frames are dropped and counted; the archive is best-effort.
package recorder
