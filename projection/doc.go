// Package projection persists the configuration of a log: its epoch and the
// history of stripes mapping positions to storage objects.
//
// Every epoch is committed to its own immutable blob with a conditional
// create, so two concurrent reconfigurations cannot both commit the same
// epoch. A CURRENT pointer names the latest commit; Load follows it and then
// probes forward, so a stale pointer never hides a newer epoch.
package projection
