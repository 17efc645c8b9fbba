// Package radio defines the contract between the link layer and a
// half-duplex LoRa packet transceiver, plus the radio configuration and
// its validation.
package radio

// A Transceiver is single-owner: every method except the registered
// completion callback is called from the link loop goroutine only.
// The completion callback is invoked from the transceiver's interrupt
// goroutine once per finished transmit or receive operation.
