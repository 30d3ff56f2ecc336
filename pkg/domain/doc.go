// Package domain contains the entities shared by the scanning pipeline, the
// push channel and the presentation layers: stored scans, per-URL results,
// AI extraction items and the events broadcast while a scan runs. The types
// carry JSON tags matching the wire format and no infrastructure concerns.
package domain
