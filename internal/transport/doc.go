// Package transport holds the state of a single metronome transport: tempo,
// meter, loop length, play/stop status and the current tick index.
//
// A State is always valid. Every mutation goes through ApplyUpdate, which
// validates the whole update before touching any field, so a rejected
// update leaves the state exactly as it was.
package transport
