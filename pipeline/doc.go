// Package pipeline contains the per-comment moderation and response pipeline.
//
// Each inbound chat comment goes through the same ordered steps:
//   - append to the bounded History (oldest comments evicted first)
//   - classify through the Moderator; flagged comments bump the offender Ledger
//     and raise an operator notification
//   - route on the comment text: comments starting with the owner handle go to
//     the direct path (reader persona, notification only); comments starting or
//     ending with the owner handle or the assistant token go to the broadcast
//     path (responder persona, chunked and injected back into the chat)
//   - synthesize a response and deliver it
//
// External systems (classification, generation, notification, output
// injection) are reached through small interfaces. Their failures never abort
// processing: they surface as Outcome values that the Pipeline logs and counts.
//
// Comments are handled strictly one at a time, in arrival order, by the single
// consumer of a Queue.
package pipeline
