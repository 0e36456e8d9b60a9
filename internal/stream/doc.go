// Package stream implements the single-flight notification stream for one
// account: the fetch gate and the event application pipeline.
//
// A Sync is a request source. While its Gate is Ready it yields one
// next-page request; the gate then stays closed until that page has been
// fetched and every event in it has been run through the pipeline:
//
//	decrypt -> apply -> commit -> checkpoint -> recycle
//
// Events run strictly one after another. The next event does not start
// until the previous event's recycle has returned. When the batch is done
// the gate reopens. If the batch moved the checkpoint, a wake is published
// so the pump asks for the next page; otherwise the same page would come
// back, and the retry waits for the host's next wake.
//
// All methods except Generator must be called on the account's serial loop.
// Completions arrive there because the transport posts them onto the loop.
package stream
