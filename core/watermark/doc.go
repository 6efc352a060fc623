// Package watermark implements incremental change detection.
//
// A watermark is the modification timestamp of the newest source record a
// flow has fully processed. Filter keeps only records modified strictly after
// the watermark (or everything in full-resync mode) and never touches the
// stored mark: advancing it is the caller's job, done only after the batch's
// writes are confirmed, so a crash mid-batch causes reprocessing rather than
// data loss.
//
// Store keeps one mark per flow for the lifetime of the process.
package watermark
