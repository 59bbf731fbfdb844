// Package wire defines the JSON messages exchanged with clients over a
// persistent connection. Every message is an object with a "type" field.
package wire
