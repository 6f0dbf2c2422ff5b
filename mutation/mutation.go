// Package mutation defines the structured change events consumed by the
// evalwatch engine. A source (live browser, replay file, in-process feed)
// emits batches of records; the tree watcher applies them to the mirror
// document in order.
//
// Besides structural mutations, the stream carries forwarded UI events
// (click, input): the engine keeps widget and handler state on the mirror,
// so user interactions observed on the real page must reach it through the
// same ordered channel as the mutations they race with.
package mutation

// Op is the type of observed event.
type Op string

const (
	OpInsert   Op = "insert"    // element subtree inserted (HTML carries the serialized subtree)
	OpRemove   Op = "remove"    // element removed
	OpText     Op = "text"      // character data changed
	OpAttr     Op = "attr"      // attribute set or changed
	OpResync   Op = "resync"    // replace the children of the element at XPath with HTML
	OpDocReset Op = "doc_reset" // entire document replaced (HTML carries the new document)
	OpClick    Op = "click"     // forwarded click on the element at XPath
	OpInput    Op = "input"     // forwarded input event; Value carries the new value
)

// Record is a single observed event.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`               // target element; parent element for insert
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`      // attribute name for attr
	Value    string `json:"value,omitempty"`     // new attribute/text/input value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialized subtree for insert/doc_reset
}

// Batch is the atomic unit emitted by a source. One batch = all records
// collected during a single observation window, in document-event order.
type Batch struct {
	ID        string   `json:"id"`        // UUIDv7
	PageURL   string   `json:"page_url"`
	PageID    string   `json:"page_id"`   // stable identifier provided by caller
	Seq       uint64   `json:"seq"`       // monotonically increasing per page (gap detection)
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at emission
}
