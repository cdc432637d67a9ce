package entity

const (
	MinBalance      = 0
	MaxBalance      = 9999
	StartingBalance = 100
)

type Session struct {
	ID      string `json:"id"`
	Balance int    `json:"balance"`
}

func NewSession(id string, balance int) *Session {
	return &Session{
		ID:      id,
		Balance: ClampBalance(balance),
	}
}

// ClampBalance bounds a balance to [MinBalance, MaxBalance].
func ClampBalance(balance int) int {
	return min(max(balance, MinBalance), MaxBalance)
}

// Credit adds amount and saturates at MaxBalance without overflowing.
func (that *Session) Credit(amount int) {
	switch {
	case amount < 0:
		that.Debit(-max(amount, -MaxBalance))
	case amount >= MaxBalance-that.Balance:
		that.Balance = MaxBalance
	default:
		that.Balance = ClampBalance(that.Balance + amount)
	}
}

// Debit subtracts amount and saturates at MinBalance without overflowing.
func (that *Session) Debit(amount int) {
	switch {
	case amount < 0:
		that.Credit(-max(amount, -MaxBalance))
	case amount >= that.Balance-MinBalance:
		that.Balance = MinBalance
	default:
		that.Balance = ClampBalance(that.Balance - amount)
	}
}

func (that *Session) IsEmpty() bool {
	return that.Balance <= MinBalance
}
