// Package utils holds small helpers shared across the client: the hybrid
// logical clock, id generation, transport hashing, the resty client wrapper
// and session token parsing.
package utils
