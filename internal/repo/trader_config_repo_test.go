package repo

import (
	"reflect"
	"testing"
)

func TestSplitSymbols(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single", "btc", []string{"BTC"}},
		{"mixed case and spacing", " btc, Eth ,sol", []string{"BTC", "ETH", "SOL"}},
		{"drops empty segments", "btc,,eth", []string{"BTC", "ETH"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := splitSymbols(c.in)
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("splitSymbols(%q) = %#v, want %#v", c.in, got, c.want)
			}
		})
	}
}

// TestTradersForUser_Integration requires a live Postgres instance matching
// the traders/ai_models/exchange_credentials schema (§6) and is not run in
// CI. Left here as the wiring point for a future docker-backed integration
// suite.
//
// func TestTradersForUser_Integration(t *testing.T) {
// 	conn := sqlx.NewMysql(os.Getenv("TEST_DSN"))
// 	repo := NewTraderConfigRepo(conn)
// 	rows, err := repo.TradersForUser(context.Background(), "user_1")
// 	...
// }
