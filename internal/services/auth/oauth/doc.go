// Package oauth runs the Google authorization-code flow on behalf of Discord
// interactions.
//
// A verification handler calls Coordinator.Start to mint a CSRF state and an
// authorization URL, then blocks in AuthProcess.Wait. The browser-facing
// callback looks the state up in the Registry, exchanges the code and hands
// the token back through a one-shot handoff. Each pending state is consumed at
// most once, and a process that outlives its deadline reports a timeout even
// if a token arrives late.
package oauth
