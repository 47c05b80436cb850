// Package mailapi abstracts the remote message-store API behind the
// narrow Remote interface the sync core consumes, and provides the Gmail
// binding of that interface.
//
// Detail calls deliberately return raw transport payloads rather than
// parsed structs: the cache layer stores those bytes verbatim, and the
// Parse* functions turn them into read models at read time. This two-layer
// design keeps cached rows valid across read-model changes.
package mailapi
