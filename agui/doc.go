// Package agui maps workflow events onto the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol for connecting
// agents to user-facing applications. This package converts the events a
// hook.Bridge delivers into AG-UI events, converts transcripts to and from
// AG-UI messages, and decodes the inputs a frontend sends back: new runs
// and answers to pending prompts.
//
// Transport is left to the caller. The CLI writes events as JSON lines;
// a server would write them as SSE.
//
// # Usage
//
//	mapper := agui.NewMapper(session.ID)
//	bridge.Subscribe(func(e event.Event) {
//		for _, ev := range mapper.Map(e) {
//			write(ev)
//		}
//	})
//
// Events that carry state have no payload in the bridge, so hosts that
// want STATE_SNAPSHOT call [Mapper.StateSnapshot] with bridge.State().
//
// # Thread Safety
//
// A Mapper is not safe for concurrent use. The bridge delivers events one
// at a time, so a Mapper subscribed to a single bridge needs no locking.
package agui
