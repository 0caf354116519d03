// Package secrets resolves ${secret:name} references in configuration values.
//
// Two providers are available:
//
//   - EnvProvider reads PROMPTCANARY_SECRET_<NAME> environment variables.
//   - FileProvider reads one file per secret from a directory, the layout of
//     Kubernetes secret mounts. Files must be mode 0600 or 0400.
//
// A Resolver tries its providers in order:
//
//	r := secrets.NewResolver(secrets.NewEnvProvider("PROMPTCANARY_SECRET_"), files)
//	url, err := r.Resolve(ctx, "https://hooks.example.com/canary?token=${secret:webhook-token}")
//
// Secret values are never logged; names are shortened in debug output.
package secrets
