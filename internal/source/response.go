package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Response is one decoded page of search results.
type Response struct {
	Time       int64  `json:"time"`
	Took       int64  `json:"took"`
	TotalCount int    `json:"totalCount"`
	Count      int    `json:"count"`
	Data       []Item `json:"data"`
}

// Item is a single result row. Fields is open-ended and grows with the schema.
type Item struct {
	ID     string
	Fields map[string]any
}

type wireResponse struct {
	Time       int64      `json:"time"`
	Took       int64      `json:"took"`
	TotalCount *int       `json:"totalCount"`
	Count      *int       `json:"count"`
	Data       []wireItem `json:"data"`
	Error      any        `json:"error"`
}

type wireItem struct {
	ID     json.RawMessage `json:"id"`
	Fields map[string]any  `json:"fields"`
}

// DecodeResponse parses a response body and checks its shape. Any failure is
// a *MalformedResponseError.
func DecodeResponse(body []byte) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var wire wireResponse
	if err := dec.Decode(&wire); err != nil {
		return Response{}, &MalformedResponseError{Reason: "decode body", Err: err}
	}
	if wire.Error != nil {
		return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("upstream error payload: %v", wire.Error)}
	}
	if wire.Count == nil {
		return Response{}, &MalformedResponseError{Reason: "missing count"}
	}
	if wire.TotalCount == nil {
		return Response{}, &MalformedResponseError{Reason: "missing totalCount"}
	}
	if *wire.Count < 0 {
		return Response{}, &MalformedResponseError{Reason: "negative count"}
	}
	if *wire.Count != len(wire.Data) {
		return Response{}, &MalformedResponseError{
			Reason: fmt.Sprintf("count %d does not match %d data items", *wire.Count, len(wire.Data)),
		}
	}
	out := Response{
		Time:       wire.Time,
		Took:       wire.Took,
		TotalCount: *wire.TotalCount,
		Count:      *wire.Count,
		Data:       make([]Item, 0, len(wire.Data)),
	}
	for i, w := range wire.Data {
		id, err := parseID(w.ID)
		if err != nil {
			return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("data[%d].id", i), Err: err}
		}
		if w.Fields == nil {
			return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("data[%d] has no fields", i)}
		}
		out.Data = append(out.Data, Item{ID: id, Fields: w.Fields})
	}
	return out, nil
}

// parseID accepts either a JSON string or a JSON integer.
func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("id is missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("id is empty")
		}
		return s, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("id %s is neither string nor integer", string(raw))
	}
	return strconv.FormatInt(n, 10), nil
}
