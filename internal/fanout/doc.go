// Package fanout delivers one message to many recipients in rate-limited
// batches.
//
// A dispatch never fails as a whole: each recipient's outcome is classified
// individually (delivered / permanently unreachable / expected churn /
// transient error) and aggregated, so one broken recipient cannot block the
// rest of the list. Batches bound the peak outbound request rate against
// third-party API limits while intra-batch concurrency keeps overall latency
// sub-linear.
package fanout
