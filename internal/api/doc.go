// Package api exposes the task dispatcher over HTTP and websockets. It
// decodes and validates requests, translates them into dispatcher commands,
// and maps domain and store errors to status codes and safe messages.
//
// The websocket endpoint speaks the JSON message protocol defined in package
// wire; the REST endpoints cover the same operations plus admin maintenance
// of the record log.
package api
