// Package engine contains the progression loop and state machine for the
// clicker game. This is the heartbeat of the server: clicks, passive accrual
// ticks and upgrade purchases are all serialized through one loop so a
// player's record is never mutated concurrently by two transitions.
package engine
