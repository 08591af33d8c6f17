// Package recordanchoring stores JSON records and anchors each record's digest
// on an external append-only ledger in the background.
//
// Creating a record only writes a pending row. Submission and confirmation run
// in worker loops that claim rows with short leases, so any number of worker
// processes can share one store.
package recordanchoring
