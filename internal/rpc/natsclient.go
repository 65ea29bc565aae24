package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Subjects the agent runtime is expected to answer on.
const (
	SubjectExecute  = "agent.execute"
	SubjectValidate = "agent.validate"
)

// NATSClient implements Client by making bounded NATS requests to the
// agent runtime: a request/reply round trip against an external process.
type NATSClient struct {
	conn *nc.Conn
}

// NewNATSClient wraps an existing NATS connection.
func NewNATSClient(conn *nc.Conn) *NATSClient {
	return &NATSClient{conn: conn}
}

type executeRequest struct {
	TaskDesc  string `json:"taskDesc"`
	Model     string `json:"model"`
	UseHosted bool   `json:"useHosted"`
}

type validateRequest struct {
	Command  string `json:"command"`
	Language string `json:"language"`
}

// Execute implements Client.
func (c *NATSClient) Execute(ctx context.Context, taskDesc, model string, useHosted bool) (ExecuteResult, error) {
	var resp ExecuteResult
	err := c.requestJSON(ctx, SubjectExecute, executeRequest{TaskDesc: taskDesc, Model: model, UseHosted: useHosted}, &resp)
	return resp, err
}

// RunValidation implements Client.
func (c *NATSClient) RunValidation(ctx context.Context, command, language string) (ValidationResult, error) {
	var resp ValidationResult
	err := c.requestJSON(ctx, SubjectValidate, validateRequest{Command: command, Language: language}, &resp)
	return resp, err
}

func (c *NATSClient) requestJSON(ctx context.Context, subject string, req, resp any) error {
	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request to %s: %w", subject, err)
	}

	timeout := 30 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, reqData)
	if err != nil {
		return fmt.Errorf("request to %s (timeout %s) failed: %w", subject, timeout, err)
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decoding response from %s: %w", subject, err)
	}
	return nil
}
