// Package mesh runs the per-node control loop above the MAC.
//
// Ownership boundary:
// - role selection and peer choice for each iteration
// - busy channel backoff
// - colour payload layout and the status indicator
// - node identity (self address and peer list)
//
// The MAC never touches the indicator or sleeps; both belong here.
package mesh
