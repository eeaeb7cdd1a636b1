package services

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"bulkload/internal/executor"
	"bulkload/internal/models"
)

const opResolveConnection = "resolve connection"

// orgDisplay is the "result" object of `<cli> org display --json`.
type orgDisplay struct {
	InstanceURL string `json:"instanceUrl"`
	AccessToken string `json:"accessToken"`
	APIVersion  string `json:"apiVersion"`
	Username    string `json:"username"`
	Alias       string `json:"alias"`
}

// ConnectionService resolves the instance URL and access token, asking the external CLI
// for whatever the configuration leaves empty.
type ConnectionService struct {
	runner     CommandRunner
	bin        string
	env        map[string]string
	configured models.Connection
	targetOrg  string
}

// NewConnectionService creates a ConnectionService. targetOrg is the default org alias.
func NewConnectionService(runner CommandRunner, bin string, env map[string]string, configured models.Connection, targetOrg string) *ConnectionService {
	return &ConnectionService{
		runner:     runner,
		bin:        bin,
		env:        env,
		configured: configured,
		targetOrg:  targetOrg,
	}
}

// Resolve returns a usable connection. targetOrg overrides the configured alias.
func (s *ConnectionService) Resolve(ctx context.Context, targetOrg string) (models.Connection, error) {
	conn := s.configured
	if conn.InstanceURL != "" && conn.AccessToken != "" {
		return conn, nil
	}
	if targetOrg == "" {
		targetOrg = s.targetOrg
	}

	args := []string{"org", "display", "--json"}
	if targetOrg != "" {
		args = append(args, "--target-org", targetOrg)
	}
	res := s.runner.Run(ctx, opResolveConnection, executor.Command{Path: s.bin, Args: args, Env: s.env})
	if !res.IsSuccess() {
		return models.Connection{}, res.Err()
	}

	raw, _ := res.Detail(DetailResult)
	body, _ := raw.(json.RawMessage)
	var org orgDisplay
	if len(body) == 0 || json.Unmarshal(body, &org) != nil {
		return models.Connection{}, &models.RemoteServiceError{
			Op:      opResolveConnection,
			Message: "org display returned no result object",
			Payload: body,
		}
	}

	if conn.InstanceURL == "" {
		conn.InstanceURL = org.InstanceURL
	}
	if conn.AccessToken == "" {
		conn.AccessToken = org.AccessToken
	}
	if org.APIVersion != "" {
		conn.APIVersion = org.APIVersion
	}
	conn.Username = org.Username

	if conn.InstanceURL == "" || conn.AccessToken == "" {
		return models.Connection{}, &models.RemoteServiceError{
			Op:      opResolveConnection,
			Message: fmt.Sprintf("org %q has no instance URL or access token; log in with the CLI first", targetOrg),
			Payload: body,
		}
	}

	log.WithFields(log.Fields{
		"instance_url": conn.InstanceURL,
		"username":     conn.Username,
		"api_version":  conn.APIVersion,
	}).Info("Resolved connection through CLI")
	return conn, nil
}
