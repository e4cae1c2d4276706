package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/tasting/internal/services"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes a direct GET request to the API
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.client.API().Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// APIPost makes a direct POST request to the API
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path, data, err := r.rawBody(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("POST request", "path", path)

	resp, err := r.client.API().Post(ctx, path, data)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, true)
}

// APIPut makes a direct PUT request to the API
func (r *Runner) APIPut(ctx context.Context, cmd *cli.Command) error {
	path, data, err := r.rawBody(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("PUT request", "path", path)

	resp, err := r.client.API().Put(ctx, path, data)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, true)
}

// APIStatus pings the API.
func (r *Runner) APIStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.Ping(ctx); err != nil {
		r.writePlain("✗ %s unreachable at %s: %v\n", r.client.Name(), r.config.Sync.APIURL, err)
		return err
	}
	return r.writePlain("✓ %s reachable at %s\n", r.client.Name(), r.config.Sync.APIURL)
}

func (r *Runner) rawBody(cmd *cli.Command) (string, []byte, error) {
	path := cmd.StringArg("path")
	data := cmd.String("data")

	if path == "" {
		return "", nil, fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}
	if data == "" {
		return "", nil, fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if !json.Valid([]byte(data)) {
		return "", nil, fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
	}
	return path, []byte(data), nil
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if !resp.OK() {
		return fmt.Errorf("%w: status %d: %v", shared.ErrAPIRequest, resp.StatusCode, resp.Err())
	}
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	if len(resp.Body) == 0 {
		return r.writePlain("%d\n", resp.StatusCode)
	}
	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}
