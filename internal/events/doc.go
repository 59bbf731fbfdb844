// Package events carries task lifecycle notifications from the dispatcher to
// whatever delivers them to clients.
//
// The dispatcher never talks to connections directly. It builds an Event
// holding the already-encoded wire message and hands it to an EventEmitter;
// handlers registered on the emitter (the session registry in production)
// decide how to deliver it. An Event is either targeted at one session or
// broadcast to every session except an optional excluded one, which lets the
// requester receive its copy exactly once.
package events
