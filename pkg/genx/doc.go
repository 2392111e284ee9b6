// Package genx provides a provider-neutral streaming layer over generative
// language backends.
//
// # Core Types
//
// MessageChunk is the unit of data in a Stream:
//   - Role: the producer of the chunk (user or model)
//   - Part: a content fragment (Text or Blob), optional
//   - Grounding: a search-grounding snapshot, optional
//
// Stream is the pull-based data flow abstraction:
//
//	type Stream interface {
//	    Next() (*MessageChunk, error)
//	    Close() error
//	    CloseWithError(error) error
//	}
//
// A stream ends with a *State error: ErrDone (wrapped) on success, or a
// Truncated, Blocked or Error state otherwise.
//
// Generator opens a Stream for a ModelContext (prompts, history, tools,
// params). GeminiGenerator and OpenAIGenerator are the bundled providers;
// both run the provider stream on their own goroutine and hand chunks to the
// caller through a StreamBuilder.
//
// # Grounding
//
// Each Grounding payload is a complete snapshot of the sources the backend
// used so far, not a delta. Consumers replace what they held before.
package genx
