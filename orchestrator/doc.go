// Package orchestrator runs the provisioning pipeline of a single unit.
//
// A unit creates a fresh identity, registers an app owned by it, pushes the
// app secret, publishes encrypted dataset content, registers the dataset and
// pushes its decryption key. Every transition is reported to an EventSink.
// A failure at any stage other than content publication ends the unit with
// a failure record; it never affects other units.
package orchestrator
