package sparqlhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/graphadm/entitystore-go/entitystore"
)

var ErrNoTransaction = errors.New("no transaction is running on this connection")
var ErrTransactionOpen = errors.New("a transaction is already running on this connection")
var ErrTransactionRejected = errors.New("endpoint did not open a transaction")

const (
	contentTypeQuery  = "application/sparql-query"
	contentTypeUpdate = "application/sparql-update"
	acceptResultsJSON = "application/sparql-results+json"
)

// Connection speaks the SPARQL 1.1 protocol over HTTP. Queries go to the
// repository endpoint, updates to its statements endpoint, and transactions
// use the GraphDB convention: POST /transactions opens one and returns its
// URL in the Location header, ?action=QUERY and ?action=UPDATE run inside
// it, PUT ?action=COMMIT commits, DELETE aborts.
//
// One Connection serves one transaction at a time; it is not safe for
// concurrent use while a transaction is open.
type Connection struct {
	cfg    Config
	client *http.Client
	actor  entitystore.Actor

	transactionURL string
}

// Option defines a functional option for configuring the Connection.
type Option func(*Connection) error

// WithHTTPClient replaces the default HTTP client, for custom transports or
// test servers.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) error {
		if client == nil {
			return errors.New("nil http client supplied")
		}
		c.client = client

		return nil
	}
}

// WithActor sets the actor this connection operates as.
func WithActor(actor entitystore.Actor) Option {
	return func(c *Connection) error {
		c.actor = actor
		return nil
	}
}

// Connect creates a connection from the config.
func Connect(cfg Config, options ...Option) (*Connection, error) {
	c := &Connection{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Connection) Actor() entitystore.Actor {
	return c.actor
}

func (c *Connection) InTransaction() bool {
	return c.transactionURL != ""
}

// Query runs a SELECT query outside any transaction.
func (c *Connection) Query(ctx context.Context, query string) (entitystore.ResultSet, error) {
	return c.runQuery(ctx, c.cfg.queryURL(), query)
}

// Update runs an update outside any transaction.
func (c *Connection) Update(ctx context.Context, update string) error {
	resp, err := c.send(ctx, http.MethodPost, c.cfg.updateURL(), contentTypeUpdate, update)
	if err != nil {
		return err
	}

	return drainAndCheck(resp)
}

// TransactionStart opens a server-side transaction.
func (c *Connection) TransactionStart(ctx context.Context) error {
	if c.InTransaction() {
		return ErrTransactionOpen
	}

	resp, err := c.send(ctx, http.MethodPost, c.cfg.transactionsURL(), "", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.Join(ErrTransactionRejected, statusError(resp))
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return errors.Join(ErrTransactionRejected, errors.New("no Location header in response"))
	}
	if strings.HasPrefix(location, "/") {
		location = c.cfg.BaseURL + location
	}
	c.transactionURL = location

	return nil
}

// TransactionQuery runs a SELECT query inside the running transaction.
func (c *Connection) TransactionQuery(ctx context.Context, query string) (entitystore.ResultSet, error) {
	if !c.InTransaction() {
		return entitystore.ResultSet{}, ErrNoTransaction
	}

	return c.runQuery(ctx, c.transactionURL+"?action=QUERY", query)
}

// TransactionUpdate runs an update inside the running transaction.
func (c *Connection) TransactionUpdate(ctx context.Context, update string) error {
	if !c.InTransaction() {
		return ErrNoTransaction
	}

	resp, err := c.send(ctx, http.MethodPost, c.transactionURL+"?action=UPDATE", contentTypeUpdate, update)
	if err != nil {
		return err
	}

	return drainAndCheck(resp)
}

// TransactionCommit commits and closes the running transaction.
func (c *Connection) TransactionCommit(ctx context.Context) error {
	if !c.InTransaction() {
		return ErrNoTransaction
	}

	resp, err := c.send(ctx, http.MethodPut, c.transactionURL+"?action=COMMIT", "", "")
	if err != nil {
		// The server never saw the request; keep the URL so the caller can
		// still abort the server-side transaction.
		return err
	}
	c.transactionURL = ""

	return drainAndCheck(resp)
}

// TransactionAbort rolls back and closes the running transaction.
func (c *Connection) TransactionAbort(ctx context.Context) error {
	if !c.InTransaction() {
		return ErrNoTransaction
	}

	resp, err := c.send(ctx, http.MethodDelete, c.transactionURL, "", "")
	if err != nil {
		return err
	}
	c.transactionURL = ""

	return drainAndCheck(resp)
}

func (c *Connection) runQuery(ctx context.Context, url, query string) (entitystore.ResultSet, error) {
	resp, err := c.send(ctx, http.MethodPost, url, contentTypeQuery, query)
	if err != nil {
		return entitystore.ResultSet{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entitystore.ResultSet{}, statusError(resp)
	}

	return decodeResults(resp.Body)
}

func (c *Connection) send(ctx context.Context, method, url, contentType, body string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building sparql request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", acceptResultsJSON)
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending sparql request: %w", err)
	}

	return resp, nil
}

func drainAndCheck(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func statusError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("endpoint answered %s: %s", resp.Status, strings.TrimSpace(string(detail)))
}
