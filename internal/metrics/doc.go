// Package metrics keeps the per-run generation ledger.
//
// A Collector accumulates append-only records (one per dispatch attempt and
// one per outcome) and mirrors them onto Prometheus instruments held in a
// private registry, so parallel collectors in tests never collide. Summary
// folds the records into per-workflow attempt/success/failure counts with
// latency averages, and Export writes the raw records as JSON Lines. The
// pipeline driver appends each run's lines to the project's .jsonl file;
// historical lines are never rewritten, which keeps runs comparable across
// strategy changes.
package metrics
