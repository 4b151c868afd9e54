// Package transport delivers sealed chunks to the relay server in order over
// HTTP, with bounded retries and a two-phase finalize handshake. The uploader
// is a cooperative state machine: the host calls Drive once per tick and no
// call ever blocks on the network.
package transport
