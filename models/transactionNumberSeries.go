package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// TransactionNumberSeries hands out document numbers per module. The counter
// row is locked for the caller's transaction, so numbers of rolled back
// documents are reused and committed numbers have no gaps.
type TransactionNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ModuleName string    `gorm:"size:50;not null;unique" json:"module_name"`
	Prefix     string    `gorm:"size:10;not null" json:"prefix"`
	NextNumber int       `gorm:"not null;default:1" json:"next_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransactionNumberSeries struct {
	ModuleName string `json:"module_name" validate:"required,max=50"`
	Prefix     string `json:"prefix" validate:"required,max=10"`
}

const (
	SeriesPaymentIncoming     = "PaymentIncoming"
	SeriesPaymentOutgoing     = "PaymentOutgoing"
	SeriesPayableInvoice      = "PayableInvoice"
	SeriesReceivableInvoice   = "ReceivableInvoice"
	SeriesPurchaseRequisition = "PurchaseRequisition"
	SeriesPurchaseOrder       = "PurchaseOrder"
	SeriesGoodsReceipt        = "GoodsReceipt"
)

var defaultSeriesPrefixes = map[string]string{
	SeriesPaymentIncoming:     "RCP",
	SeriesPaymentOutgoing:     "PMT",
	SeriesPayableInvoice:      "BILL",
	SeriesReceivableInvoice:   "INV",
	SeriesPurchaseRequisition: "PR",
	SeriesPurchaseOrder:       "PO",
	SeriesGoodsReceipt:        "GRN",
}

// nextDocumentNumber returns "<prefix>-000001" style numbers for module and
// advances the counter inside tx.
func nextDocumentNumber(ctx context.Context, tx *gorm.DB, module string) (string, error) {
	var series TransactionNumberSeries
	err := lockForUpdate(tx.WithContext(ctx)).Where("module_name = ?", module).First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefix, ok := defaultSeriesPrefixes[module]
		if !ok {
			return "", utils.NewValidationError("no number series for %s", module)
		}
		series = TransactionNumberSeries{ModuleName: module, Prefix: prefix, NextNumber: 1}
		err = tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			return sp.Create(&series).Error
		})
		if err != nil && isDuplicateKeyError(err) {
			err = lockForUpdate(tx.WithContext(ctx)).Where("module_name = ?", module).First(&series).Error
		}
	}
	if err != nil {
		return "", err
	}
	number := utils.FormatDocumentNumber(series.Prefix, series.NextNumber)
	if err := tx.WithContext(ctx).Model(&series).Update("NextNumber", gorm.Expr("next_number + 1")).Error; err != nil {
		return "", err
	}
	return number, nil
}

// UpdateTransactionNumberSeries sets the prefix of a module's series,
// creating the series when it has not been used yet.
func UpdateTransactionNumberSeries(ctx context.Context, input *NewTransactionNumberSeries) (*TransactionNumberSeries, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, ok := defaultSeriesPrefixes[input.ModuleName]; !ok {
		return nil, utils.NewFieldValidationError("unknown module", map[string]string{"module_name": "oneof"})
	}
	var series TransactionNumberSeries
	err := runInTx(ctx, func(tx *gorm.DB) error {
		err := lockForUpdate(tx).Where("module_name = ?", input.ModuleName).First(&series).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			series = TransactionNumberSeries{ModuleName: input.ModuleName, Prefix: input.Prefix, NextNumber: 1}
			return tx.Create(&series).Error
		}
		if err != nil {
			return err
		}
		series.Prefix = input.Prefix
		return tx.Model(&series).Update("Prefix", input.Prefix).Error
	})
	if err != nil {
		return nil, err
	}
	return &series, nil
}

func ListTransactionNumberSeries(ctx context.Context) ([]*TransactionNumberSeries, error) {
	var results []*TransactionNumberSeries
	err := config.GetDB().WithContext(ctx).Order("module_name").Find(&results).Error
	return results, err
}
