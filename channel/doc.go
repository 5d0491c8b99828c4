// Package channel
// Author: momentics <momentics@gmail.com>
//
// Directional FIFO of owned message handles between producer and consumer
// goroutines. Blocking consumers park on a waiter queue and receive messages by
// direct handoff; non-blocking consumers can be driven by an eventfd readiness
// handle registered in a selector next to other descriptors.
package channel
