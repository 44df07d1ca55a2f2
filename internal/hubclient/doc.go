// Package hubclient multiplexes correlated request/response exchanges with the
// hub over one transport session.
//
// Every request carries a correlation token that the hub echoes in its reply.
// A router goroutine reads the session's frames and hands each reply to the
// call waiting on its token; frames that match no outstanding call (state
// digests, progress notices, late replies) go to the notification handler.
//
// A call whose deadline passes without a reply is not an error. It returns
// OutcomeUnconfirmed: the frame was written but the hub said nothing back.
package hubclient
