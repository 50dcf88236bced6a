package service

import (
	"context"

	"github.com/aricooperman/golean/model"
)

// BaseAlgorithm is a no-op Algorithm meant for embedding: strategies override
// only the callbacks they care about.
type BaseAlgorithm struct{}

func (BaseAlgorithm) Initialize(context.Context) error { return nil }

func (BaseAlgorithm) OnData(*model.Slice) error { return nil }

func (BaseAlgorithm) OnTradeBars(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnQuoteBars(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnTicks(map[string][]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnCustomData([]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnSplits(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnDividends(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnDelistings(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnSymbolChanged(map[string]*model.DataPoint) error { return nil }

func (BaseAlgorithm) OnSecuritiesChanged(model.SecurityChanges) error { return nil }

func (BaseAlgorithm) OnOrderEvent(model.Order) error { return nil }

func (BaseAlgorithm) OnMarginCall(requests []model.Order) ([]model.Order, error) {
	return requests, nil
}

func (BaseAlgorithm) OnMarginCallWarning() error { return nil }

func (BaseAlgorithm) OnEndOfDay(model.Symbol) error { return nil }

func (BaseAlgorithm) OnEndOfAlgorithm() error { return nil }
