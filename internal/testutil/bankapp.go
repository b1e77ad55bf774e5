package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// BankAppOptions tunes the fake application's persistence and failure modes.
type BankAppOptions struct {
	// CookieName is the session cookie name. Defaults to connect.sid.
	CookieName string
	// WriteDelay postpones every datastore write, like a slow flush.
	WriteDelay time.Duration
	// DropWrites answers mutations successfully but never persists them.
	DropWrites bool
	// FailReads answers the first n GET requests with 503.
	FailReads int
	// TornWrites rewrites the datastore in place: the file is truncated
	// when the mutation is handled and written WriteDelay later. Readers in
	// between see an empty file, as with the real app's lowdb FileSync.
	TornWrites bool
}

// BankApp is an in-process stand-in for the banking application. It serves
// the REST and GraphQL endpoints the scenarios use and writes every mutation
// back to the JSON datastore. Writes replace the file atomically unless
// TornWrites is set; the real app truncates and rewrites it in place.
type BankApp struct {
	Server *httptest.Server

	path string
	opts BankAppOptions
	ids  *SequenceIDs

	mu        sync.Mutex
	doc       map[string][]map[string]any
	sessions  map[string]string
	requests  []string
	failReads int
	writes    sync.WaitGroup
}

// NewBankApp starts a fake application backed by the datastore at path.
// The server is closed, and pending writes flushed, when the test ends.
func NewBankApp(t testing.TB, path string, opts BankAppOptions) *BankApp {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	if opts.CookieName == "" {
		opts.CookieName = "connect.sid"
	}
	app := &BankApp{
		path:      path,
		opts:      opts,
		ids:       NewSequenceIDs("rec"),
		doc:       doc,
		sessions:  make(map[string]string),
		failReads: opts.FailReads,
	}

	r := chi.NewRouter()
	r.Use(app.record)
	r.Post("/login", app.login)
	r.Post("/logout", app.logout)
	r.Post("/users", app.register)
	r.Get("/checkAuth", app.authed(app.checkAuth))
	r.Get("/users", app.authed(app.listUsers))
	r.Get("/users/profile/{username}", app.authed(app.profile))
	r.Patch("/users/{userId}", app.authed(app.updateUser))
	r.Get("/bankaccounts", app.authed(app.listBankAccounts))
	r.Get("/bankAccounts", app.authed(app.listBankAccounts))
	r.Delete("/bankAccounts/{bankAccountId}", app.authed(app.deleteBankAccount))
	r.Get("/transactions/{transactionId}", app.authed(app.transaction))
	r.Post("/comments/{transactionId}", app.authed(app.createComment))
	r.Post("/graphql", app.authed(app.graphql))

	app.Server = httptest.NewServer(r)
	t.Cleanup(app.Close)
	return app
}

// URL returns the base URL of the fake application.
func (a *BankApp) URL() string {
	return a.Server.URL
}

// Requests returns "METHOD /path" for every request received, in order.
func (a *BankApp) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.requests))
	copy(out, a.requests)
	return out
}

// Flush waits for delayed writes to land on disk.
func (a *BankApp) Flush() {
	a.writes.Wait()
}

// Close stops the server and flushes pending writes.
func (a *BankApp) Close() {
	a.Server.Close()
	a.writes.Wait()
}

func (a *BankApp) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.requests = append(a.requests, r.Method+" "+r.URL.Path)
		fail := r.Method == http.MethodGet && a.failReads > 0
		if fail {
			a.failReads--
		}
		a.mu.Unlock()

		if fail {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (a *BankApp) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(a.opts.CookieName)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		a.mu.Lock()
		userID, ok := a.sessions[cookie.Value]
		a.mu.Unlock()
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r, userID)
	}
}

func (a *BankApp) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Type     string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	user := a.find("users", "username", body.Username)
	var hash string
	if user != nil {
		hash, _ = user["password"].(string)
	}
	a.mu.Unlock()

	if user == nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)) != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := "s:" + a.ids.Next()
	a.mu.Lock()
	a.sessions[token] = user["id"].(string)
	a.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: a.opts.CookieName, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"user": publicUser(user)})
}

func (a *BankApp) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(a.opts.CookieName); err == nil {
		a.mu.Lock()
		delete(a.sessions, cookie.Value)
		a.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: a.opts.CookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}

func (a *BankApp) register(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	for _, field := range []string{"firstName", "lastName", "username", "password"} {
		if s, _ := body[field].(string); s == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": field + " is required"})
			return
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body["password"].(string)), bcrypt.MinCost)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.mu.Lock()
	if a.find("users", "username", body["username"]) != nil {
		a.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]any{"error": "username taken"})
		return
	}
	id := a.ids.Next()
	now := timestamp()
	user := map[string]any{
		"id":                  id,
		"uuid":                id + "-uuid",
		"firstName":           body["firstName"],
		"lastName":            body["lastName"],
		"username":            body["username"],
		"password":            string(hash),
		"balance":             0,
		"avatar":              "",
		"defaultPrivacyLevel": "public",
		"createdAt":           now,
		"modifiedAt":          now,
	}
	a.doc["users"] = append(a.doc["users"], user)
	a.persistLocked()
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"user": publicUser(user)})
}

func (a *BankApp) checkAuth(w http.ResponseWriter, _ *http.Request, userID string) {
	a.mu.Lock()
	user := a.find("users", "id", userID)
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"user": publicUser(user)})
}

// listUsers answers with whole user records, password hash included, like
// the real GET /users.
func (a *BankApp) listUsers(w http.ResponseWriter, _ *http.Request, userID string) {
	a.mu.Lock()
	results := make([]map[string]any, 0, len(a.doc["users"]))
	for _, user := range a.doc["users"] {
		if user["id"] != userID {
			results = append(results, user)
		}
	}
	body, err := json.Marshal(map[string]any{"results": results})
	a.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (a *BankApp) profile(w http.ResponseWriter, r *http.Request, _ string) {
	a.mu.Lock()
	user := a.find("users", "username", chi.URLParam(r, "username"))
	a.mu.Unlock()
	if user == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{
		"firstName": user["firstName"],
		"lastName":  user["lastName"],
		"avatar":    user["avatar"],
	}})
}

func (a *BankApp) updateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if chi.URLParam(r, "userId") != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	user := a.find("users", "id", userID)
	for _, field := range []string{"firstName", "lastName", "email", "phoneNumber", "defaultPrivacyLevel"} {
		if v, ok := body[field]; ok {
			user[field] = v
		}
	}
	user["modifiedAt"] = timestamp()
	a.persistLocked()
	a.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (a *BankApp) listBankAccounts(w http.ResponseWriter, _ *http.Request, userID string) {
	a.mu.Lock()
	results := make([]map[string]any, 0)
	for _, acct := range a.doc["bankAccounts"] {
		if acct["userId"] == userID && acct["isDeleted"] != true {
			results = append(results, acct)
		}
	}
	body, _ := json.Marshal(map[string]any{"results": results})
	a.mu.Unlock()
	writeRaw(w, http.StatusOK, body)
}

func (a *BankApp) deleteBankAccount(w http.ResponseWriter, r *http.Request, userID string) {
	a.mu.Lock()
	acct := a.find("bankAccounts", "id", chi.URLParam(r, "bankAccountId"))
	if acct == nil || acct["userId"] != userID {
		a.mu.Unlock()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	acct["isDeleted"] = true
	acct["modifiedAt"] = timestamp()
	a.persistLocked()
	a.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (a *BankApp) transaction(w http.ResponseWriter, r *http.Request, _ string) {
	a.mu.Lock()
	tx := a.find("transactions", "id", chi.URLParam(r, "transactionId"))
	if tx == nil {
		a.mu.Unlock()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	detail := make(map[string]any, len(tx)+2)
	for k, v := range tx {
		detail[k] = v
	}
	if sender := a.find("users", "id", tx["senderId"]); sender != nil {
		detail["senderName"] = fmt.Sprintf("%v %v", sender["firstName"], sender["lastName"])
	}
	if receiver := a.find("users", "id", tx["receiverId"]); receiver != nil {
		detail["receiverName"] = fmt.Sprintf("%v %v", receiver["firstName"], receiver["lastName"])
	}
	body, _ := json.Marshal(map[string]any{"transaction": detail})
	a.mu.Unlock()
	writeRaw(w, http.StatusOK, body)
}

func (a *BankApp) createComment(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		TransactionID string `json:"transactionId"`
		Content       string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	txID := chi.URLParam(r, "transactionId")

	a.mu.Lock()
	if a.find("transactions", "id", txID) == nil {
		a.mu.Unlock()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	id := a.ids.Next()
	now := timestamp()
	comment := map[string]any{
		"id":            id,
		"uuid":          id + "-uuid",
		"content":       body.Content,
		"userId":        userID,
		"transactionId": txID,
		"createdAt":     now,
		"modifiedAt":    now,
	}
	a.doc["comments"] = append(a.doc["comments"], comment)
	a.persistLocked()
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"comment": comment})
}

func (a *BankApp) graphql(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		OperationName string         `json:"operationName"`
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.OperationName != "CreateBankAccount" {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]any{{"message": fmt.Sprintf("unknown operation %q", req.OperationName)}},
		})
		return
	}

	a.mu.Lock()
	id := a.ids.Next()
	now := timestamp()
	acct := map[string]any{
		"id":            id,
		"uuid":          id + "-uuid",
		"userId":        userID,
		"bankName":      req.Variables["bankName"],
		"accountNumber": req.Variables["accountNumber"],
		"routingNumber": req.Variables["routingNumber"],
		"isDeleted":     false,
		"createdAt":     now,
		"modifiedAt":    now,
	}
	a.doc["bankAccounts"] = append(a.doc["bankAccounts"], acct)
	a.persistLocked()

	created := make(map[string]any, len(acct))
	for k, v := range acct {
		if k != "modifiedAt" {
			created[k] = v
		}
	}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"createBankAccount": created}})
}

// find returns the last record in collection whose field equals value.
// Callers hold a.mu.
func (a *BankApp) find(collection, field string, value any) map[string]any {
	records := a.doc[collection]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i][field] == value {
			return records[i]
		}
	}
	return nil
}

// persistLocked serializes the document and writes it, now or after
// WriteDelay. Callers hold a.mu.
func (a *BankApp) persistLocked() {
	if a.opts.DropWrites {
		return
	}
	data, err := json.MarshalIndent(a.doc, "", "  ")
	if err != nil {
		return
	}
	write := writeAtomic
	if a.opts.TornWrites {
		_ = os.Truncate(a.path, 0)
		write = writeInPlace
	}
	if a.opts.WriteDelay <= 0 {
		_ = write(a.path, data)
		return
	}
	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		time.Sleep(a.opts.WriteDelay)
		_ = write(a.path, data)
	}()
}

func writeInPlace(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".database-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func publicUser(user map[string]any) map[string]any {
	out := make(map[string]any, len(user))
	for k, v := range user {
		if k != "password" {
			out[k] = v
		}
	}
	return out
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
