/*
Package security groups transport and caller authentication for the API
server.

  - auth: pre-shared API keys, with read-only keys limited to GET requests
  - tls: HTTPS listener configuration with certificate hot reload

Both are configured under server.tls and server.auth and wired by
pkg/server.
*/
package security
