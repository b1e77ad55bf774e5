package fixture

import "time"

// Collection names as they appear in the datastore document.
const (
	CollectionUsers        = "users"
	CollectionTransactions = "transactions"
	CollectionBankAccounts = "bankAccounts"
	CollectionComments     = "comments"
)

// Collections lists every collection a datastore must contain, in document order.
var Collections = []string{
	CollectionUsers,
	CollectionTransactions,
	CollectionBankAccounts,
	CollectionComments,
}

// User is an account holder. Balance is in minor currency units (cents).
type User struct {
	ID                  string    `json:"id"`
	UUID                string    `json:"uuid"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	Username            string    `json:"username"`
	Password            string    `json:"password"`
	Email               string    `json:"email,omitempty"`
	PhoneNumber         string    `json:"phoneNumber,omitempty"`
	Avatar              string    `json:"avatar,omitempty"`
	DefaultPrivacyLevel string    `json:"defaultPrivacyLevel,omitempty"`
	Balance             int64     `json:"balance"`
	CreatedAt           time.Time `json:"createdAt"`
	ModifiedAt          time.Time `json:"modifiedAt"`
}

// FullName is how the application renders a user in transaction details.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// BankAccount is a linked external account. Deletion only sets IsDeleted.
type BankAccount struct {
	ID            string    `json:"id"`
	UUID          string    `json:"uuid"`
	UserID        string    `json:"userId"`
	BankName      string    `json:"bankName"`
	AccountNumber string    `json:"accountNumber"`
	RoutingNumber string    `json:"routingNumber"`
	IsDeleted     bool      `json:"isDeleted"`
	CreatedAt     time.Time `json:"createdAt"`
	ModifiedAt    time.Time `json:"modifiedAt"`
}

// Transaction moves Amount minor units from SenderID to ReceiverID.
type Transaction struct {
	ID            string    `json:"id"`
	UUID          string    `json:"uuid,omitempty"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	PrivacyLevel  string    `json:"privacyLevel,omitempty"`
	Status        string    `json:"status,omitempty"`
	RequestStatus string    `json:"requestStatus,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	ModifiedAt    time.Time `json:"modifiedAt,omitzero"`
}

// Comment is free text attached to a transaction.
type Comment struct {
	ID            string    `json:"id"`
	UUID          string    `json:"uuid,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	TransactionID string    `json:"transactionId"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	ModifiedAt    time.Time `json:"modifiedAt,omitzero"`
}

// Credentials is one entry of the users fixture (users.json).
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
