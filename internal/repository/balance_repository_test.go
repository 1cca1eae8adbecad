package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn != "" {
		var err error
		testDB, err = sql.Open("postgres", dsn)
		if err != nil {
			panic(err)
		}
		mig, err := migrate.New("file://../migrations", dsn)
		if err != nil {
			panic(err)
		}
		if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			panic(err)
		}
		_, _ = mig.Close()
	}

	code := m.Run()
	if testDB != nil {
		if err := testDB.Close(); err != nil {
			fmt.Printf("close db error")
		}
	}
	os.Exit(code)
}

func requireDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("TEST_DATABASE_URI is not set")
	}
	_, err := testDB.Exec(`TRUNCATE withdrawal_audit_logs, withdrawals, balance_transactions, balances`)
	require.NoError(t, err)
	return testDB
}

const (
	userA = "0b8f6f2e-2d5c-4b8e-9a3b-1f1d2f3e4a5b"
	userB = "8c2a1d7e-6f4b-4e1a-b2c3-d4e5f6a7b8c9"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mutation(userID string, amount string) BalanceMutation {
	return BalanceMutation{
		UserID:    userID,
		Currency:  models.CurrencyUSD,
		Amount:    dec(amount),
		Reference: models.FundsReference{ID: "contract-1", Type: models.RefTypeContract},
	}
}

// repositories returns every implementation available in this run.
func repositories(t *testing.T) map[string]func() BalanceRepository {
	impls := map[string]func() BalanceRepository{
		"memory": NewMemoryBalanceRepository,
	}
	if testDB != nil {
		impls["postgres"] = func() BalanceRepository { return NewBalanceRepository(requireDB(t)) }
	}
	return impls
}

func TestBalanceRepo_Hold(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		seed          string
		hold          string
		wantErr       error
		wantAvailable string
		wantHeld      string
	}{
		{
			name:          "hold part of available",
			seed:          "100",
			hold:          "30",
			wantAvailable: "70",
			wantHeld:      "30",
		},
		{
			name:          "hold everything",
			seed:          "100",
			hold:          "100",
			wantAvailable: "0",
			wantHeld:      "100",
		},
		{
			name:    "hold more than available",
			seed:    "100",
			hold:    "100.00000001",
			wantErr: ErrInsufficientAvailable,
		},
		{
			name:    "no balance record",
			hold:    "1",
			wantErr: ErrBalanceNotFound,
		},
	}

	for implName, newRepo := range repositories(t) {
		for _, tt := range tests {
			t.Run(implName+"/"+tt.name, func(t *testing.T) {
				r := newRepo()
				if tt.seed != "" {
					_, err := r.Credit(ctx, mutation(userA, tt.seed))
					require.NoError(t, err)
				}

				got, err := r.Hold(ctx, mutation(userA, tt.hold))
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Nil(t, got)
					return
				}
				require.NoError(t, err)
				assert.True(t, dec(tt.wantAvailable).Equal(got.Available), "available %s", got.Available)
				assert.True(t, dec(tt.wantHeld).Equal(got.Held), "held %s", got.Held)
			})
		}
	}
}

func TestBalanceRepo_ReleaseAndCapture(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "100"))
			require.NoError(t, err)
			_, err = r.Hold(ctx, mutation(userA, "60"))
			require.NoError(t, err)

			released, err := r.Release(ctx, mutation(userA, "20"))
			require.NoError(t, err)
			assert.True(t, dec("60").Equal(released.Available))
			assert.True(t, dec("40").Equal(released.Held))

			captured, err := r.Capture(ctx, mutation(userA, "40"))
			require.NoError(t, err)
			assert.True(t, dec("60").Equal(captured.Available))
			assert.True(t, captured.Held.IsZero())

			_, err = r.Release(ctx, mutation(userA, "0.1"))
			assert.ErrorIs(t, err, ErrInsufficientHeld)
			_, err = r.Capture(ctx, mutation(userA, "0.1"))
			assert.ErrorIs(t, err, ErrInsufficientHeld)

			_, err = r.Release(ctx, mutation(userB, "1"))
			assert.ErrorIs(t, err, ErrBalanceNotFound)
		})
	}
}

func TestBalanceRepo_ConcurrentHolds(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "100"))
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := r.Hold(ctx, mutation(userA, "10"))
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
						return
					}
					assert.ErrorIs(t, err, ErrInsufficientAvailable)
				}()
			}
			wg.Wait()

			assert.Equal(t, 10, succeeded)
			balances, err := r.GetBalances(ctx, userA, "")
			require.NoError(t, err)
			require.Len(t, balances, 1)
			assert.True(t, balances[0].Available.IsZero())
			assert.True(t, dec("100").Equal(balances[0].Held))
		})
	}
}

func TestBalanceRepo_GetBalances(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "10"))
			require.NoError(t, err)
			xlm := mutation(userA, "5")
			xlm.Currency = models.CurrencyXLM
			_, err = r.Credit(ctx, xlm)
			require.NoError(t, err)

			all, err := r.GetBalances(ctx, userA, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			onlyXLM, err := r.GetBalances(ctx, userA, string(models.CurrencyXLM))
			require.NoError(t, err)
			require.Len(t, onlyXLM, 1)
			assert.True(t, dec("5").Equal(onlyXLM[0].Available))

			none, err := r.GetBalances(ctx, userB, "")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestBalanceRepo_GetTransactions(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "100"))
			require.NoError(t, err)
			for i := 0; i < 4; i++ {
				_, err = r.Hold(ctx, mutation(userA, "5"))
				require.NoError(t, err)
			}
			_, err = r.Release(ctx, mutation(userA, "5"))
			require.NoError(t, err)

			txs, total, err := r.GetTransactions(ctx, userA, models.TransactionFilters{Page: 1, Limit: 20})
			require.NoError(t, err)
			assert.Equal(t, 6, total)
			require.Len(t, txs, 6)
			assert.Equal(t, models.TransactionRelease, txs[0].Type)
			assert.Equal(t, "contract-1", txs[0].RefID)
			assert.Equal(t, models.RefTypeContract, txs[0].RefType)

			holds, total, err := r.GetTransactions(ctx, userA, models.TransactionFilters{
				Type: string(models.TransactionHold), Page: 2, Limit: 3,
			})
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Len(t, holds, 1)

			empty, total, err := r.GetTransactions(ctx, userB, models.TransactionFilters{Page: 1, Limit: 20})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, empty)
		})
	}
}

func TestBalanceRepo_Debit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		seed          string
		debit         string
		wantErr       error
		wantAvailable string
	}{
		{name: "debit part of available", seed: "100", debit: "40", wantAvailable: "60"},
		{name: "debit everything", seed: "99.99999999", debit: "99.99999999", wantAvailable: "0"},
		{name: "debit more than available", seed: "10", debit: "10.00000001", wantErr: ErrInsufficientAvailable},
		{name: "no balance record", debit: "1", wantErr: ErrBalanceNotFound},
	}

	for implName, newRepo := range repositories(t) {
		for _, tt := range tests {
			t.Run(implName+"/"+tt.name, func(t *testing.T) {
				r := newRepo()
				if tt.seed != "" {
					_, err := r.Credit(ctx, mutation(userA, tt.seed))
					require.NoError(t, err)
				}

				m := mutation(userA, tt.debit)
				m.Reference = models.FundsReference{ID: "fee-1", Type: models.RefTypeFee}
				got, err := r.Debit(ctx, m)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Nil(t, got)
					return
				}
				require.NoError(t, err)
				assert.True(t, dec(tt.wantAvailable).Equal(got.Available), "available %s", got.Available)
				assert.True(t, got.Held.IsZero())

				txs, _, err := r.GetTransactions(ctx, userA, models.TransactionFilters{Type: string(models.TransactionDebit), Page: 1, Limit: 20})
				require.NoError(t, err)
				require.Len(t, txs, 1)
				assert.Equal(t, models.RefTypeFee, txs[0].RefType)
			})
		}
	}
}

func settleMutation(from, to, amount string) SettleMutation {
	return SettleMutation{
		FromUserID:  from,
		ToUserID:    to,
		Currency:    models.CurrencyUSD,
		Amount:      dec(amount),
		Reference:   models.FundsReference{ID: "contract-1", Type: models.RefTypeContract},
		Description: "Settlement for contract contract-1",
	}
}

func TestBalanceRepo_Settle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name               string
		payerHeld          string
		payeeSeed          string
		settle             SettleMutation
		wantErr            error
		wantPayerHeld      string
		wantPayeeAvailable string
	}{
		{
			name:               "payee without a record",
			payerHeld:          "50",
			settle:             settleMutation(userA, userB, "30"),
			wantPayerHeld:      "20",
			wantPayeeAvailable: "30",
		},
		{
			name:               "payee with a record",
			payerHeld:          "50",
			payeeSeed:          "5",
			settle:             settleMutation(userA, userB, "50"),
			wantPayerHeld:      "0",
			wantPayeeAvailable: "55",
		},
		{
			name:      "more than held",
			payerHeld: "50",
			settle:    settleMutation(userA, userB, "50.00000001"),
			wantErr:   ErrInsufficientHeld,
		},
		{
			name:    "payer without a record",
			settle:  settleMutation(userA, userB, "1"),
			wantErr: ErrBalanceNotFound,
		},
		{
			name:      "same user",
			payerHeld: "50",
			settle:    settleMutation(userA, userA, "1"),
			wantErr:   ErrSameAccount,
		},
	}

	for implName, newRepo := range repositories(t) {
		for _, tt := range tests {
			t.Run(implName+"/"+tt.name, func(t *testing.T) {
				r := newRepo()
				if tt.payerHeld != "" {
					_, err := r.Credit(ctx, mutation(userA, "100"))
					require.NoError(t, err)
					_, err = r.Hold(ctx, mutation(userA, tt.payerHeld))
					require.NoError(t, err)
				}
				if tt.payeeSeed != "" {
					_, err := r.Credit(ctx, mutation(userB, tt.payeeSeed))
					require.NoError(t, err)
				}

				got, err := r.Settle(ctx, tt.settle)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Nil(t, got)

					payee, err := r.GetBalances(ctx, userB, "")
					require.NoError(t, err)
					assert.Empty(t, payee)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, userA, got.FromBalance.UserID)
				assert.Equal(t, userB, got.ToBalance.UserID)
				assert.True(t, dec(tt.wantPayerHeld).Equal(got.FromBalance.Held), "payer held %s", got.FromBalance.Held)
				assert.True(t, dec("50").Equal(got.FromBalance.Available), "payer available %s", got.FromBalance.Available)
				assert.True(t, dec(tt.wantPayeeAvailable).Equal(got.ToBalance.Available), "payee available %s", got.ToBalance.Available)

				for _, user := range []string{userA, userB} {
					txs, _, err := r.GetTransactions(ctx, user, models.TransactionFilters{Type: string(models.TransactionSettle), Page: 1, Limit: 20})
					require.NoError(t, err)
					require.Len(t, txs, 1)
					assert.Equal(t, "contract-1", txs[0].RefID)
					assert.True(t, tt.settle.Amount.Equal(txs[0].Amount))
				}
			})
		}
	}
}

func TestBalanceRepo_ConcurrentSettleAndRelease(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "100"))
			require.NoError(t, err)
			_, err = r.Hold(ctx, mutation(userA, "100"))
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(settle bool) {
					defer wg.Done()
					var err error
					if settle {
						_, err = r.Settle(ctx, settleMutation(userA, userB, "10"))
					} else {
						_, err = r.Release(ctx, mutation(userA, "10"))
					}
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
						return
					}
					assert.ErrorIs(t, err, ErrInsufficientHeld)
				}(i%2 == 0)
			}
			wg.Wait()

			assert.Equal(t, 10, succeeded)
			payer, err := r.GetBalances(ctx, userA, "")
			require.NoError(t, err)
			require.Len(t, payer, 1)
			assert.True(t, payer[0].Held.IsZero())

			total := payer[0].Available
			payee, err := r.GetBalances(ctx, userB, "")
			require.NoError(t, err)
			for _, b := range payee {
				total = total.Add(b.Total())
			}
			assert.True(t, dec("100").Equal(total), "total %s", total)
		})
	}
}

func TestBalanceRepo_GetTransactionsUpperBound(t *testing.T) {
	ctx := context.Background()

	for implName, newRepo := range repositories(t) {
		t.Run(implName, func(t *testing.T) {
			r := newRepo()
			_, err := r.Credit(ctx, mutation(userA, "100"))
			require.NoError(t, err)

			tests := []struct {
				name string
				to   time.Time
				want int
			}{
				{name: "an hour ago", to: time.Now().Add(-time.Hour), want: 0},
				{name: "a minute ahead", to: time.Now().Add(time.Minute), want: 1},
			}
			for _, tt := range tests {
				to := tt.to
				_, total, err := r.GetTransactions(ctx, userA, models.TransactionFilters{To: &to, Page: 1, Limit: 20})
				require.NoError(t, err)
				assert.Equal(t, tt.want, total, tt.name)
			}
		})
	}
}

func TestParseTransactionAmounts(t *testing.T) {
	tests := []struct {
		name    string
		amounts [3]string
		wantErr bool
	}{
		{name: "valid", amounts: [3]string{"1.5", "98.5", "0"}},
		{name: "bad amount", amounts: [3]string{"NaN?", "1", "1"}, wantErr: true},
		{name: "bad available", amounts: [3]string{"1", "", "1"}, wantErr: true},
		{name: "bad held", amounts: [3]string{"1", "1", "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx models.BalanceTransaction
			err := parseTransactionAmounts(&tx, tt.amounts[0], tt.amounts[1], tt.amounts[2])
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, dec("1.5").Equal(tx.Amount))
			assert.True(t, dec("98.5").Equal(tx.AvailableAfter))
		})
	}
}
