package fixture

import (
	"reflect"
	"time"
)

// Record is a datastore entry decoded without a fixed shape.
// Numbers are kept as json.Number so integer fields compare exactly.
type Record map[string]any

// Snapshot is a point-in-time copy of the datastore.
// Snapshots are values: a reload produces a new Snapshot, it never mutates one.
type Snapshot struct {
	Path         string
	Generation   int64
	LoadedAt     time.Time
	Users        []User
	Transactions []Transaction
	BankAccounts []BankAccount
	Comments     []Comment

	records map[string][]Record
}

// Records returns the raw records of a collection in document order.
func (s *Snapshot) Records(collection string) []Record {
	if s == nil {
		return nil
	}
	return s.records[collection]
}

// Counts returns the number of records per collection.
func (s *Snapshot) Counts() map[string]int {
	counts := make(map[string]int, len(Collections))
	for _, name := range Collections {
		counts[name] = len(s.Records(name))
	}
	return counts
}

// Equal reports whether two snapshots hold the same data.
// Generation, LoadedAt and Path are bookkeeping and are ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(s.Users, other.Users) &&
		reflect.DeepEqual(s.Transactions, other.Transactions) &&
		reflect.DeepEqual(s.BankAccounts, other.BankAccounts) &&
		reflect.DeepEqual(s.Comments, other.Comments) &&
		reflect.DeepEqual(s.records, other.records)
}

// FindUser returns the most recently appended user matching pred.
func (s *Snapshot) FindUser(pred func(User) bool) (User, error) {
	for i := len(s.Users) - 1; i >= 0; i-- {
		if pred(s.Users[i]) {
			return s.Users[i], nil
		}
	}
	return User{}, notFound(CollectionUsers)
}

// FindTransaction returns the most recently appended transaction matching pred.
func (s *Snapshot) FindTransaction(pred func(Transaction) bool) (Transaction, error) {
	for i := len(s.Transactions) - 1; i >= 0; i-- {
		if pred(s.Transactions[i]) {
			return s.Transactions[i], nil
		}
	}
	return Transaction{}, notFound(CollectionTransactions)
}

// FindBankAccount returns the most recently appended bank account matching pred.
func (s *Snapshot) FindBankAccount(pred func(BankAccount) bool) (BankAccount, error) {
	for i := len(s.BankAccounts) - 1; i >= 0; i-- {
		if pred(s.BankAccounts[i]) {
			return s.BankAccounts[i], nil
		}
	}
	return BankAccount{}, notFound(CollectionBankAccounts)
}

// FindComment returns the most recently appended comment matching pred.
func (s *Snapshot) FindComment(pred func(Comment) bool) (Comment, error) {
	for i := len(s.Comments) - 1; i >= 0; i-- {
		if pred(s.Comments[i]) {
			return s.Comments[i], nil
		}
	}
	return Comment{}, notFound(CollectionComments)
}

// FindRecord returns the most recently appended raw record matching pred,
// together with its index in the collection.
func (s *Snapshot) FindRecord(collection string, pred func(Record) bool) (Record, int, error) {
	records := s.Records(collection)
	for i := len(records) - 1; i >= 0; i-- {
		if pred(records[i]) {
			return records[i], i, nil
		}
	}
	return nil, -1, notFound(collection)
}

// UserByUsername looks a user up by login name.
func (s *Snapshot) UserByUsername(username string) (User, error) {
	return s.FindUser(func(u User) bool { return u.Username == username })
}

// UserByID looks a user up by id.
func (s *Snapshot) UserByID(id string) (User, error) {
	return s.FindUser(func(u User) bool { return u.ID == id })
}

// TransactionByID looks a transaction up by id.
func (s *Snapshot) TransactionByID(id string) (Transaction, error) {
	return s.FindTransaction(func(t Transaction) bool { return t.ID == id })
}

// BankAccountByID looks a bank account up by id.
func (s *Snapshot) BankAccountByID(id string) (BankAccount, error) {
	return s.FindBankAccount(func(b BankAccount) bool { return b.ID == id })
}
