// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - WaveStarted: a dispatch wave queried its band
//   - HeroNotified: an offer was sent (or failed) to a hero
//   - OfferAnswered: a hero accepted or declined an offer
//   - JobAssigned: the arbiter bound a hero to a job
//   - DispatchFinished: a dispatch loop ended
//   - JobStatusChanged: a lifecycle transition was committed
package events
