// Package server composes and runs the verification process boundary.
//
// It hosts the browser-facing OAuth callback over HTTP and a gRPC health
// endpoint, both backed by one coordinator and one guild store.
package server
