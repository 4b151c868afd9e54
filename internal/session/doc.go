// Package session reassembles per-session chunk streams on the server side.
// Chunks may arrive out of order or more than once; the store keeps the last
// payload written per sequence number and reconstructs the ordered stream at
// finalize time, skipping gaps left by permanently dropped chunks.
package session
