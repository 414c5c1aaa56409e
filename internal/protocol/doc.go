// Package protocol defines the messages exchanged between a transport
// scheduler and its consumer, their JSON wire form, and the unbounded
// mailbox used to carry them without blocking the sender.
//
// Every message carries a "message" field naming its kind:
//
//	{"message":"start","bpm":120,"beatsPerMeasure":4,"measuresPerLoop":2}
//	{"message":"tick","tickIndex":0,"downbeat":true,"scheduledTime":1234.5}
package protocol
