package settlement

import (
	"encoding/csv"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rishav/exchange-core/internal/events"
	"github.com/rishav/exchange-core/internal/marketdata"
	"github.com/rishav/exchange-core/internal/orders"
)

func TestConsumeTradesWritesLedgerAndPublishes(t *testing.T) {
	dir := t.TempDir()
	pub := marketdata.NewPublisher(4)
	defer pub.Close()
	tradeCh := pub.SubscribeTrades(1)

	c, err := New(Config{
		TradeLedgerPath:   dir + "/trades.csv",
		BalanceLedgerPath: dir + "/balances.csv",
	}, pub, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	c.ConsumeTrades(TradeBatch{
		Order: &orders.Order{ID: 2, SymbolID: 1},
		Fills: []orders.Fill{
			{TradeID: 1, SymbolID: 1, Price: 100, Quantity: 5, MakerOrderID: 1, TakerOrderID: 2, MakerUserID: 10, TakerUserID: 20, TakerSide: orders.SideBuy},
		},
	})

	report := <-tradeCh
	require.Equal(t, uint64(1), report.TradeID)

	require.NoError(t, c.Close())
	rows, err := readCSV(dir + "/trades.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", rows[0][0]) // trade id
	require.Equal(t, "100", rows[0][2])
}

func TestConsumeBalanceEventWritesLedger(t *testing.T) {
	dir := t.TempDir()
	pub := marketdata.NewPublisher(4)
	defer pub.Close()

	c, err := New(Config{
		TradeLedgerPath:   dir + "/trades.csv",
		BalanceLedgerPath: dir + "/balances.csv",
	}, pub, zerolog.Nop())
	require.NoError(t, err)

	c.ConsumeBalanceEvent(events.BalanceEvent{
		Event:   events.Event{SequenceNum: 7},
		UserID:  1,
		AssetID: 2,
		Kind:    events.BalanceLock,
		Amount:  500,
	})
	require.NoError(t, c.Close())

	rows, err := readCSV(dir + "/balances.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "7", rows[0][0])
	require.Equal(t, "LOCK", rows[0][3])
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}
