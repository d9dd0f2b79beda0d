// Package protocol defines the events the inference pipelines emit.
//
// Every event is one variant of the closed Envelope union. Variants carry a
// Header naming the pipeline and the run they belong to; consumers switch on
// the concrete type rather than inspecting a status string. The status string
// only exists on the wire, where Encode and Decode translate between variants
// and JSON and Decode rejects records that do not form a valid variant.
//
// A transcription run emits
//
//	Loading, Download*, Loaded, Ready, (Partial | Chunk)*, [Error], Finished
//
// and a translation run emits
//
//	Loading, Download*, Loaded, Update*, [Error], Complete
package protocol
