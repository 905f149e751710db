// Package loop provides a single-goroutine event loop.
//
// The Connection Manager runs every state transition and every caller
// callback on one Loop, which gives it the ordering of a cooperative,
// single-threaded host:
//   - Posted functions run in FIFO order, one at a time
//   - Post never blocks (backed by an unbounded Queue)
//   - Timers post their function to the loop and can be cancelled
//     up to the moment the function starts
package loop
