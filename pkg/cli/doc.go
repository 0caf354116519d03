/*
Package cli provides command-line helpers for the promptcanary command.

API Client:

Operator commands talk to a running server over its HTTP API:

	client := cli.NewClient("127.0.0.1:8080", 0)
	var status canary.Status
	if err := client.Do(ctx, http.MethodGet, "/v1/releases/"+id+"/status", nil, &status); err != nil {
		os.Exit(cli.ExitCode(err))
	}

Error responses come back as *APIError; unreachable servers as
*TransportError. ExitCode maps both to distinct process exit codes.

Output Formatting:

Results render as text (default), JSON, or CSV. Types implementing Texter or
Tabular control their own text and CSV layout:

	formatter := cli.NewFormatter(cli.FormatCSV)
	if err := formatter.FormatTo(os.Stdout, events); err != nil {
		return err
	}

Progress Reporting:

SampleProgress redraws one line showing a canary's samples against the
minimum sample count, used by "status --watch".

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
