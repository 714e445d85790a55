package credit_test

import (
	"testing"

	"github.com/xraph/starledger/credit"
)

func TestDebt(t *testing.T) {
	tests := []struct {
		name string
		txs  []*credit.Transaction
		want int64
	}{
		{"empty", nil, 0},
		{"used only", []*credit.Transaction{{Type: credit.TypeCreditUsed, Amount: 50}}, 50},
		{
			"used plus interest minus repaid",
			[]*credit.Transaction{
				{Type: credit.TypeCreditUsed, Amount: 50},
				{Type: credit.TypeInterestCharged, Amount: 5},
				{Type: credit.TypeCreditRepaid, Amount: 20},
			},
			35,
		},
		{
			"over repaid clamps at zero",
			[]*credit.Transaction{
				{Type: credit.TypeCreditUsed, Amount: 10},
				{Type: credit.TypeCreditRepaid, Amount: 25},
			},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := credit.Debt(tt.txs); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStarEffect(t *testing.T) {
	if got := credit.TypeInterestCharged.StarEffect(7); got != -7 {
		t.Errorf("interest: got %d, want -7", got)
	}
	if got := credit.TypeCreditUsed.StarEffect(7); got != 0 {
		t.Errorf("used: got %d, want 0", got)
	}
	if got := credit.TypeCreditRepaid.StarEffect(7); got != 0 {
		t.Errorf("repaid: got %d, want 0", got)
	}
}
