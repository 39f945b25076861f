// Package http contains the REST handlers for the LicenseLock API.
// Each handler owns one resource, exposes its routes as a chi.Router
// and translates domain errors through the shared error mapper.
package http
