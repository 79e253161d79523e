// Package blast sends a batch of copies of one message through SMTP.
//
// A Coordinator splits Plan.Total across workers for every account, runs each
// worker in its own goroutine and reports per-send progress and one terminal
// result to a ProgressSink. The advisor (Recommend, RecommendFor) picks a
// concurrency plan that keeps public providers within their connection and
// daily quota limits.
//
// A Coordinator is single-use. To send again, create a new one.
package blast
