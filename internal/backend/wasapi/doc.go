// Package wasapi captures the render mix of a Windows output endpoint through
// WASAPI shared-mode loopback with event-driven buffering.
package wasapi
