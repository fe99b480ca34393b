// Package pipeline runs an ordered chain of event stages on elastic worker
// pools.
//
// The first stage is a Generator that produces detector events; every
// following Stage consumes the output of its predecessor. Stages that
// report Concurrent are cloned into more instances while their input
// queue backs up. Queues between stages hand out a slot in the downstream
// queue when an event is taken, so the output order of a stage always
// equals its input order, however many instances run and in whichever
// order they finish.
//
// A Supervisor drives the chain. SoftInterrupt stops the generator and
// lets the queued events drain; HardInterrupt stops all instances at once.
package pipeline
