package session

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
)

// CreateBankAccountMutation is the mutation the application's bank account
// form sends.
const CreateBankAccountMutation = `mutation CreateBankAccount($bankName: String!, $accountNumber: String!, $routingNumber: String!) {
  createBankAccount(bankName: $bankName, accountNumber: $accountNumber, routingNumber: $routingNumber) {
    id
    uuid
    userId
    bankName
    accountNumber
    routingNumber
    isDeleted
    createdAt
  }
}`

// Profile is the public part of a user.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
}

// TransactionDetail is a transaction as the detail view returns it.
type TransactionDetail struct {
	fixture.Transaction
	SenderName   string `json:"senderName"`
	ReceiverName string `json:"receiverName"`
}

// NewBankAccount is the input of CreateBankAccount.
type NewBankAccount struct {
	BankName      string
	AccountNumber string
	RoutingNumber string
}

// NewUser is the signup form.
type NewUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(v)
}

func (c *Client) expectOK(ctx context.Context, call Call) (*Response, error) {
	resp, err := c.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListBankAccounts returns the current user's bank accounts that are not deleted.
func (c *Client) ListBankAccounts(ctx context.Context) ([]fixture.BankAccount, error) {
	var body struct {
		Results []fixture.BankAccount `json:"results"`
	}
	if err := c.getJSON(ctx, "/bankaccounts", &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// ListUsers returns the users visible to the current user.
func (c *Client) ListUsers(ctx context.Context) ([]fixture.User, error) {
	var body struct {
		Results []fixture.User `json:"results"`
	}
	if err := c.getJSON(ctx, "/users", &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// UserProfile returns the public profile of username.
func (c *Client) UserProfile(ctx context.Context, username string) (Profile, error) {
	var body struct {
		User Profile `json:"user"`
	}
	if err := c.getJSON(ctx, "/users/profile/"+url.PathEscape(username), &body); err != nil {
		return Profile{}, err
	}
	return body.User, nil
}

// Transaction returns the detail view of one transaction.
func (c *Client) Transaction(ctx context.Context, id string) (TransactionDetail, error) {
	var body struct {
		Transaction TransactionDetail `json:"transaction"`
	}
	if err := c.getJSON(ctx, "/transactions/"+url.PathEscape(id), &body); err != nil {
		return TransactionDetail{}, err
	}
	return body.Transaction, nil
}

// CreateComment posts content on a transaction.
func (c *Client) CreateComment(ctx context.Context, transactionID, content string) error {
	_, err := c.expectOK(ctx, Call{
		Method: http.MethodPost,
		Path:   "/comments/" + url.PathEscape(transactionID),
		Body:   map[string]string{"transactionId": transactionID, "content": content},
	})
	return err
}

// DeleteBankAccount soft-deletes a bank account.
func (c *Client) DeleteBankAccount(ctx context.Context, id string) error {
	_, err := c.expectOK(ctx, Call{Method: http.MethodDelete, Path: "/bankAccounts/" + url.PathEscape(id)})
	return err
}

// CreateBankAccount runs the CreateBankAccount mutation. The returned
// account has no ModifiedAt because the mutation does not select it.
func (c *Client) CreateBankAccount(ctx context.Context, in NewBankAccount) (fixture.BankAccount, error) {
	resp, err := c.GraphQL(ctx, "CreateBankAccount", CreateBankAccountMutation, map[string]any{
		"bankName":      in.BankName,
		"accountNumber": in.AccountNumber,
		"routingNumber": in.RoutingNumber,
	})
	if err != nil {
		return fixture.BankAccount{}, err
	}
	var body struct {
		Data struct {
			CreateBankAccount fixture.BankAccount `json:"createBankAccount"`
		} `json:"data"`
	}
	if err := resp.Decode(&body); err != nil {
		return fixture.BankAccount{}, err
	}
	return body.Data.CreateBankAccount, nil
}

// UpdateUser patches the given fields of a user, as the settings form does.
func (c *Client) UpdateUser(ctx context.Context, userID string, fields map[string]any) error {
	_, err := c.expectOK(ctx, Call{Method: http.MethodPatch, Path: "/users/" + url.PathEscape(userID), Body: fields})
	return err
}

// Register signs a new user up. It does not need or change the credential.
func (c *Client) Register(ctx context.Context, in NewUser) (fixture.User, error) {
	resp, err := c.expectOK(ctx, Call{Method: http.MethodPost, Path: "/users", Body: in, Anonymous: true})
	if err != nil {
		return fixture.User{}, err
	}
	var body struct {
		User fixture.User `json:"user"`
	}
	if err := resp.Decode(&body); err != nil {
		return fixture.User{}, err
	}
	return body.User, nil
}

// Logout ends the session and clears the stored credential.
func (c *Client) Logout(ctx context.Context) error {
	defer c.clear()
	_, err := c.expectOK(ctx, Call{Method: http.MethodPost, Path: "/logout"})
	return err
}
