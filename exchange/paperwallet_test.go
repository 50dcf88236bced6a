package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/model"
)

func TestMarketOrderFillsAtLastPrice(t *testing.T) {
	wallet := NewPaperWallet(context.Background(), WithPaperCash("USD", 1000))
	wallet.OnPrice("AAPL", 100)

	order, err := wallet.CreateOrderMarket(model.SideTypeBuy, "AAPL", 5)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusTypeFilled, order.Status)
	assert.Equal(t, 100.0, order.Price)

	quantity, avgPrice, err := wallet.Position("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, quantity)
	assert.Equal(t, 100.0, avgPrice)

	account, err := wallet.Account()
	require.NoError(t, err)
	assert.Equal(t, 500.0, account.Balance("USD").Free)
	assert.Equal(t, 5.0, account.Balance("AAPL").Free)
}

func TestMarketOrderRejectsInsufficientCash(t *testing.T) {
	wallet := NewPaperWallet(context.Background(), WithPaperCash("USD", 100))
	wallet.OnPrice("AAPL", 100)

	_, err := wallet.CreateOrderMarket(model.SideTypeBuy, "AAPL", 5)
	assert.ErrorContains(t, err, "insufficient USD")
}

func TestLimitOrderFillsOnCross(t *testing.T) {
	wallet := NewPaperWallet(context.Background(), WithPaperCash("USD", 1000))
	wallet.OnPrice("AAPL", 100)

	order, err := wallet.CreateOrderLimit(model.SideTypeBuy, "AAPL", 2, 95)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusTypeNew, order.Status)

	wallet.OnPrice("AAPL", 98)
	latest, err := wallet.Order("AAPL", order.ID)
	require.NoError(t, err)
	assert.True(t, latest.IsOpen())

	wallet.OnPrice("AAPL", 94)
	latest, err = wallet.Order("AAPL", order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusTypeFilled, latest.Status)
	assert.Equal(t, 95.0, latest.Price)

	quantity, _, err := wallet.Position("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2.0, quantity)
}

func TestMarketOnCloseFillsOnNextPrice(t *testing.T) {
	wallet := NewPaperWallet(context.Background(),
		WithPaperCash("USD", 0),
		WithPaperPosition("AAPL", 5, 90),
	)

	order, err := wallet.CreateOrderMarketOnClose(model.SideTypeSell, "AAPL", 5)
	require.NoError(t, err)
	assert.True(t, order.IsOpen())

	wallet.OnPrice("AAPL", 102)
	latest, err := wallet.Order("AAPL", order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusTypeFilled, latest.Status)
	assert.Equal(t, 102.0, latest.Price)

	quantity, _, err := wallet.Position("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.0, quantity)
	assert.Equal(t, 510.0, wallet.Equity())
}

func TestUpdateAndCancel(t *testing.T) {
	wallet := NewPaperWallet(context.Background(), WithPaperCash("USD", 1000))
	wallet.OnPrice("AAPL", 100)

	order, err := wallet.CreateOrderLimit(model.SideTypeBuy, "AAPL", 2, 95)
	require.NoError(t, err)

	order.Quantity = 4
	order.Price = 47.5
	updated, err := wallet.Update(order)
	require.NoError(t, err)
	assert.Equal(t, 4.0, updated.Quantity)
	assert.Equal(t, 47.5, updated.Price)

	require.NoError(t, wallet.Cancel(updated, "changed my mind"))
	latest, err := wallet.Order("AAPL", order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusTypeCanceled, latest.Status)
	assert.Equal(t, "changed my mind", latest.CancelReason)

	assert.Error(t, wallet.Cancel(latest, "again"))

	open, err := wallet.OpenOrders("AAPL")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAveragePriceBlendsBuys(t *testing.T) {
	wallet := NewPaperWallet(context.Background(), WithPaperCash("USD", 10000))
	wallet.OnPrice("AAPL", 100)

	_, err := wallet.CreateOrderMarket(model.SideTypeBuy, "AAPL", 10)
	require.NoError(t, err)

	wallet.OnPrice("AAPL", 110)
	_, err = wallet.CreateOrderMarket(model.SideTypeBuy, "AAPL", 10)
	require.NoError(t, err)

	quantity, avgPrice, err := wallet.Position("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 20.0, quantity)
	assert.Equal(t, 105.0, avgPrice)
}
