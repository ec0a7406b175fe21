// Package monitor implements the poll-diff-notify pipeline: fetch the bonus
// page, compare the snapshot against the persisted baseline, fan out
// notifications on a Quiet->Active transition, then persist and mirror the
// new state.
//
// One cycle runs at a time; the cron chain skips a tick while the previous
// cycle (including all dispatch) is still in flight. All errors are contained
// at the cycle boundary so the scheduler always re-arms.
package monitor
