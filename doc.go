// Package sdk is the Unstract tool SDK for Go.
//
// A tool is an isolated worker process executing one step of a
// document-processing workflow. The SDK provides the tool host protocol
// (pkg/tool), the platform service client (pkg/platform), provider-agnostic
// adapters for LLMs, embeddings, vector stores and text extraction
// (pkg/adapter), document indexing (pkg/index), usage accounting
// (pkg/usage), and shared file storage (pkg/storage).
//
// A minimal tool wires a handler into the entrypoint:
//
//	func main() {
//		tool.Main(&myTool{})
//	}
//
// The orchestrator invokes the binary with --command SPEC|PROPERTIES|
// ICON|VARIABLES to read its descriptors, and --command RUN with
// --settings to execute it against the data directory named by
// TOOL_DATA_DIR.
package sdk
