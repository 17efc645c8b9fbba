// Package link arbitrates a half-duplex radio between a serial byte
// stream and radio packets.
//
// Serial bytes accumulate into a bounded frame which is handed to the
// transceiver only while no radio operation is outstanding. Completion of
// a radio operation is signalled from interrupt context through a
// CompletionLatch and handled on the next PollOnce, which always leaves
// the transceiver listening.
//
// All Arbiter methods run on a single goroutine, usually the
// framework.Loop. The only state shared with the interrupt goroutine is
// the latch.
package link
