package session

import (
	"context"
	"net/http"
	"strings"
)

// GraphQLPath is the application's GraphQL endpoint.
const GraphQLPath = "/graphql"

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// GraphQL posts an operation to GraphQLPath. A non-2xx status or an
// "errors" array in the body is reported as a *RequestError alongside the
// response.
func (c *Client) GraphQL(ctx context.Context, operationName, query string, variables map[string]any) (*Response, error) {
	resp, err := c.Send(ctx, Call{
		Method: http.MethodPost,
		Path:   GraphQLPath,
		Body:   graphQLRequest{OperationName: operationName, Query: query, Variables: variables},
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}

	var envelope struct {
		Errors []graphQLError `json:"errors"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return resp, &RequestError{Method: resp.Method, Path: resp.Path, Status: resp.StatusCode, Err: err}
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return resp, &RequestError{
			Method: resp.Method,
			Path:   resp.Path,
			Status: resp.StatusCode,
			Reason: operationName + ": " + strings.Join(msgs, "; "),
		}
	}
	return resp, nil
}
