// Package logger wraps zap to provide:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Services accept a context and pull the logger out of it, so request-scoped
// fields (query parameters, remote address) follow every message.
package logger
