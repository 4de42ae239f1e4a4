// Package native holds the platform collaborators the device API core talks
// to: the message-port daemon, the vconf key store, the feature table, the
// accelerometer, the connection manager and the telephony service. Each one
// is an in-process implementation of the narrow contract the core relies on.
package native
