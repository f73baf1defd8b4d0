// Package tandem is the orchestration engine behind a terminal AI coding agent.
//
// A [workflow.Workflow] drives a multi-turn conversation between a model and
// the local machine. The model proposes shell commands and file patches
// through the native tools ([ToolShell], [ToolApplyPatch]) and any tools
// advertised by connected MCP servers. Every call passes through the tool
// execution gate, which consults the active [ApprovalPolicy] and asks the
// user when the safety classifier cannot auto-approve.
//
// # Core Types
//
//   - [Message]: a transcript entry with a closed [Role] and typed [ContentPart]s
//   - [ToolCall] and [ToolResult]: one result per dispatched call
//   - [ApprovalPolicy], [ReviewDecision] and [CommandConfirmation]
//   - [Session]: the per-workflow context object handed to every component
//
// # Basic Usage
//
//	session := ai.NewSession("claude-sonnet-4-5", ".", logger)
//	bridge := hook.New(hook.Options{Policy: ai.PolicyAutoEdit})
//	wf, err := workflow.New(workflow.Deps{
//	    Session:  session,
//	    Caller:   model.NewProviderCaller(provider, session),
//	    Executor: executor,
//	}, bridge)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := wf.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	wf.Message("list files")
//	wf.Wait()
//
// # Cancellation
//
// Stop cancels only the running turn and leaves the transcript intact; a
// later Message resumes the conversation. Terminate cancels the workflow's
// root scope, closes every MCP connection and rejects further use with
// [ErrAlreadyTerminated].
package tandem
