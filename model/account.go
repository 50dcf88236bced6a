package model

// Balance is the free and locked amount of one currency at the broker.
type Balance struct {
	Asset string
	Free  float64
	Lock  float64
}

// Account is the broker-side snapshot of balances.
type Account struct {
	Balances []Balance
}

// Balance returns the balance of the asset, zero-valued when unknown.
func (a Account) Balance(asset string) Balance {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b
		}
	}
	return Balance{Asset: asset}
}
