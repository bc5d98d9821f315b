package storage

import (
	"fmt"
)

// AttachmentField is the record field holding the list of file descriptors.
const AttachmentField = "file"

// ExplodeAttachments returns one Attachment per file descriptor found in the
// records' AttachmentField. Descriptors without an id are skipped.
func ExplodeAttachments(records []RawRecord) []Attachment {
	var out []Attachment
	for _, rec := range records {
		raw, ok := rec.Fields.Get(AttachmentField)
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			desc, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fileID := descriptorID(desc["id"])
			if fileID == "" {
				continue
			}
			fields := make(map[string]any, len(desc))
			for k, v := range desc {
				if k == "id" {
					continue
				}
				fields[k] = v
			}
			out = append(out, Attachment{
				RecordID: rec.ID,
				FileID:   fileID,
				Fields:   FieldsFromMap(fields),
			})
		}
	}
	return out
}

func descriptorID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// PrepareRecords rejects records without an id and collapses duplicate ids
// within a batch so that the last occurrence wins.
func PrepareRecords(records []RawRecord) ([]RawRecord, error) {
	index := make(map[string]int, len(records))
	out := make([]RawRecord, 0, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("record %d: %w: empty id", i, ErrInvalidRecord)
		}
		rec.Fields = NormalizeFields(rec.Fields)
		if at, dup := index[rec.ID]; dup {
			out[at] = rec
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

// PartitionAnnotations separates documents with content from empty ones,
// returning the ids of the rejected documents.
func PartitionAnnotations(docs []AnnotatedDocument) (keep []AnnotatedDocument, rejected []string) {
	keep = make([]AnnotatedDocument, 0, len(docs))
	for _, d := range docs {
		if len(d.Content) == 0 || d.Text() == "" {
			rejected = append(rejected, d.ID)
			continue
		}
		keep = append(keep, d)
	}
	return keep, rejected
}
