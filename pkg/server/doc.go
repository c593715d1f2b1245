// Package server provides the HTTP lookup API in front of the
// coordinator: a batch lookup endpoint plus health and metrics routes.
package server
