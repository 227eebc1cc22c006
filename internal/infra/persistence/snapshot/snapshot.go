// Package snapshot defines the JSON document durable stores use to persist a
// whole session. Objects are listed parents first and, within a list, in list
// order, so a document can be replayed top-down.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// FormatVersion is the version written by Encode.
const FormatVersion = 1

// ErrUnsupportedVersion reports a document written by a newer format.
var ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")

// Document is a full session image.
type Document struct {
	Version int      `json:"version"`
	Root    string   `json:"root"`
	Objects []Object `json:"objects"`
}

// Object is one stored entity. Values are keyed by qualified property name
// and only hold properties that were written.
type Object struct {
	Key    string                     `json:"key"`
	Set    string                     `json:"set"`
	Parent string                     `json:"parent,omitempty"`
	List   string                     `json:"list,omitempty"`
	Values map[string]json.RawMessage `json:"values,omitempty"`
}

// Header is the part of a document that can be read without decoding the
// objects.
type Header struct {
	Version int
	Root    string
	Objects int
}

// Empty reports whether the document holds no session.
func (d Document) Empty() bool { return d.Root == "" && len(d.Objects) == 0 }

// Encode renders doc, stamping the current format version.
func Encode(doc Document) ([]byte, error) {
	doc.Version = FormatVersion
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// ReadHeader inspects a payload without unmarshalling the object list.
func ReadHeader(data []byte) (Header, error) {
	if !gjson.ValidBytes(data) {
		return Header{}, fmt.Errorf("snapshot: invalid json")
	}
	res := gjson.GetManyBytes(data, "version", "root", "objects.#")
	h := Header{
		Version: int(res[0].Int()),
		Root:    res[1].String(),
		Objects: int(res[2].Int()),
	}
	if h.Version > FormatVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// Decode parses a payload written by Encode. Documents from a newer format
// are refused before the object list is decoded.
func Decode(data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{Version: FormatVersion}, nil
	}
	if _, err := ReadHeader(data); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return doc, nil
}
