// Package ingest feeds candidate frames from both ingestion paths into the
// state store.
//
// The stream path (StreamSource) owns the serial device: it opens it with a
// retry policy, runs every inbound chunk through a frame.Assembler and hands
// each complete candidate to the Pipeline. The discrete path
// (Pipeline.Submit) takes an already complete candidate and skips framing.
// Both end in the same Validate → Store.Set sequence, so subscribers cannot
// tell which path a reading came from.
//
// Nothing in this package terminates the process on bad input or device
// failure: rejections are counted and logged, device errors are retried.
package ingest
