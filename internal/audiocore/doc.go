// Package audiocore hosts the stream engine that bridges a shared-mode
// audio client API onto a host audio server.
//
// # Architecture Overview
//
//   - format: wave format descriptors to host sample specs and back
//   - ringbuf: render ring with lease/commit protocol, capture packet pool
//   - mixer: per-channel gain and silence for every supported encoding
//   - host: the host audio server interface and its backends
//   - engine: stream lifecycle, handle table, per-stream timing loops
//
// The dispatch package above the engine exposes every operation through
// an ordinal call table.
//
// # Concurrency
//
// A single engine mutex guards all stream state. Engine operations and
// timing loop bodies take it through a scoped guard and give it up only
// while sleeping or while waiting on the host. A host call that never
// returns therefore stalls every stream.
//
// # Units
//
// Durations crossing the client API are 100 ns reference units
// (RefTime). Buffer positions are bytes internally and frames at the API.
package audiocore
