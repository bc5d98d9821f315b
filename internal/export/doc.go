// Package export publishes the annotated corpus: the vertical corpus file
// with one <doc> element per record, and the list of tags actually used.
// Artifacts go to a blob.Store and finished corpus exports are announced
// through a publisher.Publisher.
package export
