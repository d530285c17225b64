// Package stripe tracks how log positions are spread across storage objects.
//
// A History is the append-only record of stripe layouts a log has used. Each
// Stripe is opened by a reconfiguration and covers every position from its
// Start up to the Start of the next stripe. A Mapper turns a position into the
// name of the object that stores it:
//
//	slot := position % stripe.Width
//	oid  := "<log>.<slot>"
//
// Mapping is a pure function of the position and the history.
package stripe
