// Package fileops implements the tagged-block wire format used by the
// generative backend to propose file changes, and applies the resulting
// operations to a working copy.
//
// The format is fixed. A write block replaces a file's entire content:
//
//	<write path="relative/path.ext">
//	...content...
//	</write>
//
// A delete block removes a file:
//
//	<delete path="relative/path.ext"/>
//
// Blocks may appear anywhere in the backend's response, interleaved with
// arbitrary prose, which is ignored. The format carries whole files only,
// never diffs.
package fileops

// OpKind identifies the kind of a file operation.
type OpKind string

const (
	// OpWrite replaces a file's full content, creating it if absent.
	OpWrite OpKind = "write"

	// OpDelete removes a file. Deleting a file that does not exist is a
	// no-op, not an error.
	OpDelete OpKind = "delete"
)

// Operation is one parsed file operation. Path is forward-slash separated
// and relative to the working-copy root. The parser takes Path literally;
// normalization and containment checks happen at apply time.
type Operation struct {
	Kind    OpKind
	Path    string
	Content string // write operations only
}
