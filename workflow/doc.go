// Package workflow implements the turn-based orchestration engine.
//
// A Workflow drives a conversation between a model and the local
// environment. Message starts a turn loop when the workflow is idle and
// queues the input when it is not. Each turn assembles the model context,
// calls the model, commits what it produced and passes every tool call
// through the execution gate, in order.
//
// # Lifecycle
//
//	Idle -> Running -> Idle
//	  any            -> Terminated
//
// Stop cancels the running turn and returns to Idle without touching the
// transcript. Terminate cancels the workflow's hard scope, closes the
// external tool providers and makes every further operation fail with
// tandem.ErrAlreadyTerminated.
//
// # Generations
//
// Every start, Stop and Terminate bumps a generation counter. A loop only
// commits to the hook bridge while its generation is current, so results
// that arrive after a Stop are discarded rather than recorded.
//
// # Usage
//
//	bridge := hook.New(hook.Options{Policy: ai.PolicyAutoEdit, Workdir: dir})
//	wf, err := workflow.New(workflow.Deps{
//		Session:  ai.NewSession(model, dir, logger),
//		Caller:   caller,
//		Executor: localexec.New(),
//	}, bridge)
//	if err != nil {
//		return err
//	}
//	if err := wf.Initialize(ctx); err != nil {
//		return err
//	}
//	wf.Message("list the files in this directory")
//	wf.Wait()
package workflow
