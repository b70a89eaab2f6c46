package models

import "time"

// Transaction type constants
const (
	TransactionTypeDeposit         = "DEPOSIT"
	TransactionTypeRefund          = "REFUND"
	TransactionTypeDebit           = "DEBIT"
	TransactionTypeCredit          = "CREDIT"
	TransactionTypeOperationDeduct = "OPERATION_DEDUCT"
)

// Actor constants for ledger and activity entries
const (
	ActorSystem = "system"
	ActorAdmin  = "admin"
	ActorReaper = "timeout-reaper"
)

// Database model. Transactions are append-only: rows are inserted inside
// the same database transaction that mutates the owner's balance and are
// never updated or deleted afterwards.
type Transaction struct {
	ID           string    `db:"id"`
	OwnerID      string    `db:"owner_id"`
	Type         string    `db:"type"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	OperationID  *string   `db:"operation_id"`
	Actor        string    `db:"actor"`
	Notes        *string   `db:"notes"`
	CreatedAt    time.Time `db:"created_at"`
}

// Database model. Balance and StoreCredit are mutable caches of the
// ledger; every change goes through the Tx repo under a row lock.
type User struct {
	ID          string    `db:"id"`
	Role        string    `db:"role"`
	Balance     int64     `db:"balance"`
	StoreCredit int64     `db:"store_credit"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Role constants
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the resolved authenticated caller. How it was
// authenticated (cookie session, bearer token) is the gateway's concern;
// this service only needs the owner id and role.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the principal may read or mutate entities
// owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || p.ID == ownerID
}

type BalanceResponse struct {
	OwnerID     string `json:"ownerId"`
	Balance     int64  `json:"balance"`
	StoreCredit int64  `json:"storeCredit"`
}

// BalanceSnapshot is the cached view of both spendable pools. Cached and
// invalidated as one value so a reader never sees a fresh wallet figure
// next to a stale store credit.
type BalanceSnapshot struct {
	Balance     int64 `json:"balance"`
	StoreCredit int64 `json:"store_credit"`
}

type ActivityEntry struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Actor       string    `db:"actor"`
	Action      string    `db:"action"`
	Details     *string   `db:"details"`
	OperationID *string   `db:"operation_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type Notification struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}
