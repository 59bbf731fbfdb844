// Package config loads the server settings from defaults, an optional
// config file and SCRY_TASKS_* environment variables, and validates them
// before any component is built. Every group of settings maps onto one
// component: the HTTP server, the record store, the dispatcher, session
// liveness, the integrity sweep and admin auth.
package config
