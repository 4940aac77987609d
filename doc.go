// Package maestro provides a lightweight, embeddable workflow orchestration
// core for Go.
//
// Maestro is designed for content generation pipelines built around LLM
// agents: long-running, multi-step jobs where individual steps are expensive,
// failures are routine, and losing completed work is unacceptable. It runs
// fully in Go, persists progress as it goes, and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The Maestro programming model is intentionally small and idiomatic:
//
//  1. Engine
//  2. WorkflowDefinition and the compiled graph
//  3. Runner
//  4. Checkpoints
//  5. Events
//
// These components form a complete orchestration system with deterministic
// scheduling, durable progress (when using the SQLite backend), and a clear
// mental model.
//
// # Engine
//
// The Engine stores workflow definitions, compiles them into leveled
// execution graphs, persists job state, and provides APIs to:
//   - create and execute jobs
//   - pause, resume, and cancel jobs
//   - list checkpoints and resume from a chosen one
//   - read job state and the event history
//
// Engines can be backed by different storage:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability for jobs, checkpoints, and events)
//
// # Workflows and the compiled graph
//
// A WorkflowDefinition lists steps and their dependencies. Registration
// compiles the definition into a directed acyclic graph and groups it into
// execution levels: every step in a level depends only on earlier levels, so
// steps within a level run concurrently. Cycles, duplicate step IDs, and
// unknown dependencies are rejected at registration, never at run time.
//
// Definitions are written with the fluent builder:
//
//	maestro.NewWorkflow("content-pipeline").
//	    Step("fetch", fetchRunner).
//	    Step("outline", outlineRunner, maestro.Needs("fetch")).
//	    Step("draft", draftRunner, maestro.Needs("outline"),
//	        maestro.WithRetry(maestro.Retry(3).WithExponentialBackoff(time.Second, 2.0, 30*time.Second).Policy()))
//
// or loaded from YAML with ParseWorkflow / LoadWorkflowFile, with runners
// resolved from a Registry by identifier.
//
// # Runner
//
// A Runner is the fundamental executable unit of a workflow:
//
//	type Runner interface {
//	    Run(ctx context.Context, sc StepContext) (any, error)
//	}
//
// Runners receive a read-only StepContext holding the job's inputs and the
// outputs of completed steps; their return value becomes their own output.
// Runners should be idempotent: a resumed job re-runs any step of an
// interrupted level whose output was not checkpointed.
//
// # Checkpoints
//
// After every completed level the engine writes an all-or-nothing checkpoint:
// which steps completed, were skipped, or failed, every recorded output, and
// the next level to execute. A paused, cancelled, or crashed job can be
// resumed from its latest checkpoint, or from any earlier one to force
// re-execution of later levels.
//
// # Events
//
// Every lifecycle transition is published on an event bus: job created,
// started, paused, resumed, completed, failed, cancelled; level and step
// progress; checkpoint saves and warnings. Live subscribers receive events
// best-effort and in per-job order; the SQLite backend additionally records
// the full history for replay.
//
// # Summary
//
// Maestro's goal is to give Go developers a pipeline orchestrator that feels
// like Go: easy to embed, easy to test, deterministic, and without
// operational overhead. Engines manage job state, the compiler turns
// definitions into leveled graphs, Runners contain business logic, and
// checkpoints make long jobs survivable.
//
// For examples, see the /examples directory or the project README.
package maestro
