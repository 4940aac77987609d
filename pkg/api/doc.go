// Package api defines the public types of the maestro engine: workflow and
// step specifications, compiled execution graphs, jobs, checkpoints, events,
// and the Engine interface itself.
//
// Application code normally imports the root maestro package, which
// re-exports everything here alongside the engine constructors.
package api
