// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package client is a Go client for the crm HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxResponseSize = 1 * 1024 * 1024

type User struct {
	ID          string     `json:"id"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

type Customer struct {
	ID             string  `json:"id"`
	UserID         *string `json:"user_id"`
	CustomerNumber string  `json:"customer_number"`
	AccountNumber  string  `json:"account_number"`

	Title       *string `json:"title"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	IDNumber    *string `json:"id_number"`
	DateOfBirth *string `json:"date_of_birth"`
	Nationality string  `json:"nationality"`

	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	Mobile string  `json:"mobile"`

	AddressLine1 *string `json:"address_line1"`
	Suburb       *string `json:"suburb"`
	City         string  `json:"city"`
	Province     string  `json:"province"`
	PostalCode   string  `json:"postal_code"`

	CompanyName *string  `json:"company_name"`
	CreditLimit *float64 `json:"credit_limit"`

	CustomerType            string `json:"customer_type"`
	Status                  string `json:"status"`
	PreferredLanguage       string `json:"preferred_language"`
	CommunicationPreference string `json:"communication_preference"`
	MarketingConsent        bool   `json:"marketing_consent"`

	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CreatedBy      *string   `json:"created_by"`
	LastModifiedBy *string   `json:"last_modified_by"`
}

// CustomerRequest creates or updates a customer. Only non-empty fields are
// sent, which on update leaves the rest of the record unchanged.
type CustomerRequest struct {
	UserID       string   `json:"user_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	IDNumber     string   `json:"id_number,omitempty"`
	DateOfBirth  string   `json:"date_of_birth,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Mobile       string   `json:"mobile,omitempty"`
	AddressLine1 string   `json:"address_line1,omitempty"`
	Suburb       string   `json:"suburb,omitempty"`
	City         string   `json:"city,omitempty"`
	Province     string   `json:"province,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	CustomerType string   `json:"customer_type,omitempty"`
	Status       string   `json:"status,omitempty"`
	CreditLimit  *float64 `json:"credit_limit,omitempty"`

	PreferredLanguage       string `json:"preferred_language,omitempty"`
	CommunicationPreference string `json:"communication_preference,omitempty"`
	MarketingConsent        *bool  `json:"marketing_consent,omitempty"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type ListOptions struct {
	Page     int
	Limit    int
	Search   string
	Status   string
	Province string
}

func (o ListOptions) query() url.Values {
	q := make(url.Values)
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	for k, v := range map[string]string{"search": o.Search, "status": o.Status, "province": o.Province} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type CustomerPage struct {
	Customers  []*Customer `json:"customers"`
	Pagination Pagination  `json:"pagination"`
}

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("crm: %d %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

type Client struct {
	baseURL string
	http    *http.Client
	authed  *http.Client

	session *Session
}

// New returns a Client for the server at baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	session := newSession()
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		authed: &http.Client{
			Transport: &oauth2.Transport{
				Source: session,
				Base:   httpClient.Transport,
			},
			CheckRedirect: httpClient.CheckRedirect,
			Jar:           httpClient.Jar,
			Timeout:       httpClient.Timeout,
		},
		session: session,
	}
}

func (c *Client) Session() *Session {
	return c.session
}

type authResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/auth/login", body)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return c.authenticate(ctx, "/auth/register", req)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*User, error) {
	if err := c.session.begin(); err != nil {
		return nil, err
	}
	var resp authResponse
	if err := c.do(ctx, c.http, "POST", path, nil, body, &resp); err != nil {
		c.session.fail(err)
		return nil, err
	}
	if resp.Token == "" {
		err := errors.New("client: response is missing a token")
		c.session.fail(err)
		return nil, err
	}
	if err := c.session.establish(resp.Token, resp.User); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Logout revokes the session token on the server. The local session is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.end()
	return c.do(ctx, c.authed, "POST", "/auth/logout", nil, nil, nil)
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, c.authed, "GET", "/auth/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) ListCustomers(ctx context.Context, opts ListOptions) (*CustomerPage, error) {
	var page CustomerPage
	if err := c.do(ctx, c.authed, "GET", "/customers", opts.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type customerResponse struct {
	Customer *Customer `json:"customer"`
}

func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	var resp customerResponse
	if err := c.do(ctx, c.authed, "POST", "/customers", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var resp customerResponse
	if err := c.do(ctx, c.authed, "GET", "/customers/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, req CustomerRequest) (*Customer, error) {
	var resp customerResponse
	if err := c.do(ctx, c.authed, "PUT", "/customers/"+url.PathEscape(id), nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	return c.do(ctx, c.authed, "DELETE", "/customers/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		// surface session errors from the transport unwrapped
		if errors.Is(err, ErrNotAuthenticated) {
			return ErrNotAuthenticated
		}
		if errors.Is(err, ErrTokenExpired) {
			return ErrTokenExpired
		}
		return err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized && hc == c.authed {
			c.session.expire()
		}
		var problem struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bs, &problem) != nil || problem.Error == "" {
			problem.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: problem.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
