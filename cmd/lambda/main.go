// Lambda entry point: one poll per invocation.
//
// Environment:
//   - SENDER_EMAIL, SENDER_APP_PASSWORD, RECEIVER_EMAILS: mail credentials
//   - FEED_PUSH_PROFILES: optional YAML profiles file bundled with the function
//   - FEED_PUSH_PROFILE:  profile name (default: trumpstruth)
//   - FEED_PUSH_STATE_BACKEND, FEED_PUSH_STATE: state location (default:
//     /tmp/last_link.txt, or /tmp/feed-push.db for the sqlite backend)
//   - FEED_PUSH_LOG_LEVEL: log level
//
// Only /tmp is writable on Lambda, and it is not kept between cold starts,
// so point the state at a mounted volume for reliable deduplication.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/robertmeta/feed-push/config"
	"github.com/robertmeta/feed-push/logging"
	"github.com/robertmeta/feed-push/pipeline"
)

// stateDir is the only writable directory on Lambda.
const stateDir = "/tmp"

// Response is returned to the invoker.
type Response struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Profile    string   `json:"profile,omitempty"`
	Fetched    int      `json:"fetched"`
	Rendered   int      `json:"rendered"`
	Pushed     bool     `json:"pushed"`
	Sent       []string `json:"sent,omitempty"`
	Skipped    string   `json:"skipped,omitempty"`
}

// Handler runs the pipeline once.
func Handler(ctx context.Context, event interface{}) (Response, error) {
	return handle(ctx, os.LookupEnv)
}

func handle(ctx context.Context, lookup config.Lookup) (Response, error) {
	cfg, err := config.Load(overrides(lookup), lookup)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	defer closer.Close()
	defer log.Sync()

	runner, state, err := pipeline.FromConfig(cfg, log)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error(), Profile: cfg.Profile.Name}, err
	}
	defer state.Close()

	out, err := runner.Run(ctx)
	resp := Response{
		StatusCode: 200,
		Profile:    cfg.Profile.Name,
		Fetched:    out.Fetched,
		Rendered:   out.Rendered,
		Pushed:     out.Pushed,
		Sent:       out.Report.Sent,
		Skipped:    out.Skipped,
	}
	if err != nil {
		resp.StatusCode = 500
		resp.Message = err.Error()
		return resp, err
	}

	switch {
	case out.Skipped != "":
		resp.Message = fmt.Sprintf("No digest sent: %s", out.Skipped)
	default:
		resp.Message = fmt.Sprintf("Sent %d items to %d recipients", out.Rendered, len(out.Report.Sent))
	}
	return resp, nil
}

func overrides(lookup config.Lookup) config.Overrides {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	o := config.Overrides{
		ProfilesFile: get("FEED_PUSH_PROFILES"),
		Profile:      get("FEED_PUSH_PROFILE"),
		StateBackend: get("FEED_PUSH_STATE_BACKEND"),
		StatePath:    get("FEED_PUSH_STATE"),
		LogLevel:     get("FEED_PUSH_LOG_LEVEL"),
	}
	if o.StatePath == "" {
		o.StateDir = stateDir
	}
	return o
}

func main() {
	lambda.Start(Handler)
}
