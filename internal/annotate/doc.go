// Package annotate turns stored report text into the vertical tagged-corpus
// format: one "<s>" ... "</s>" block per sentence and one tab-separated
// word/tag/lempos line per token. The Batcher drives the work in bounded
// batches over the records the staleness tracker reports as due.
package annotate
