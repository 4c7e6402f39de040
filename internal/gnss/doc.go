// Package gnss ingests the positioning receiver's raw navigation stream.
//
// The receiver produces on its own schedule with no backpressure channel:
// bytes land in a fixed-capacity ring that the log pipeline drains in whole
// blocks, and anything beyond capacity is dropped and counted. The same
// stream is scanned for NMEA RMC/GSA sentences to maintain the current fix
// (epoch, quality tier, independent date/time validity) used by clock
// resynchronization.
//
// This is a best-effort bring-up service; read failures mark the fix stale
// but never bring down the main process.
package gnss
