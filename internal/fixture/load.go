package fixture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Load reads and validates the datastore at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &IOError{Path: path, Reason: "file not found", Err: err}
		}
		return nil, &IOError{Path: path, Reason: "read failed", Err: err}
	}
	snap, err := Parse(data)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
			return nil, ioErr
		}
		return nil, &IOError{Path: path, Reason: "parse failed", Err: err}
	}
	snap.Path = path
	return snap, nil
}

// Parse decodes a datastore document. The four collections are required and
// every record must satisfy its schema definition. Each call validates on a
// fresh Schema, so reloading does not accumulate CUE values.
func Parse(data []byte) (*Snapshot, error) {
	schema, err := NewSchema()
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &IOError{Reason: reasonMalformed, Err: err}
	}

	snap := &Snapshot{
		LoadedAt: time.Now(),
		records:  make(map[string][]Record, len(Collections)),
	}

	for _, name := range Collections {
		raw, ok := doc[name]
		if !ok {
			return nil, &IOError{Reason: fmt.Sprintf("missing collection %q", name)}
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, &IOError{Reason: fmt.Sprintf("collection %q is not an array", name), Err: err}
		}

		records := make([]Record, 0, len(items))
		for i, item := range items {
			if err := schema.Validate(collectionDefs[name], item); err != nil {
				return nil, &IOError{Reason: fmt.Sprintf("%s[%d] violates schema", name, i), Err: err}
			}
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, &IOError{Reason: fmt.Sprintf("%s[%d] malformed", name, i), Err: err}
			}
			records = append(records, rec)
		}
		snap.records[name] = records

		if err := decodeTyped(name, raw, snap); err != nil {
			return nil, &IOError{Reason: fmt.Sprintf("collection %q malformed", name), Err: err}
		}
	}

	return snap, nil
}

func decodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeTyped(name string, raw json.RawMessage, snap *Snapshot) error {
	switch name {
	case CollectionUsers:
		return json.Unmarshal(raw, &snap.Users)
	case CollectionTransactions:
		return json.Unmarshal(raw, &snap.Transactions)
	case CollectionBankAccounts:
		return json.Unmarshal(raw, &snap.BankAccounts)
	case CollectionComments:
		return json.Unmarshal(raw, &snap.Comments)
	}
	return fmt.Errorf("unknown collection %q", name)
}

// LoadUsers reads the credentials fixture, a JSON object keyed by alias:
//
//	{"testuser": {"username": "Heath93", "password": "s3cret"}}
func LoadUsers(path string) (map[string]Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &IOError{Path: path, Reason: "file not found", Err: err}
		}
		return nil, &IOError{Path: path, Reason: "read failed", Err: err}
	}

	var users map[string]Credentials
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, &IOError{Path: path, Reason: reasonMalformed, Err: err}
	}
	for alias, creds := range users {
		if creds.Username == "" {
			return nil, &IOError{Path: path, Reason: fmt.Sprintf("user %q has no username", alias)}
		}
	}
	return users, nil
}
